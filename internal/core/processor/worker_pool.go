package processor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"face-gate-go/internal/integrations/extractor"

	log "github.com/sirupsen/logrus"
)

// WorkerPool verwaltet einen Pool von Worker-Goroutinen für die
// Template-Extraktion. Die Extraktion ist der teuerste Schritt der
// Pipeline und bleibt damit von den HTTP-Handlern entkoppelt.
type WorkerPool struct {
	provider        extractor.Provider
	jobs            chan *extractJob
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
}

// extractJob repräsentiert einen Extraktionsjob
type extractJob struct {
	ctx        context.Context
	imageBytes []byte
	source     string
	detectOnly bool
	resultCh   chan *extractResult // Individueller Ergebniskanal pro Job
}

// extractResult enthält das Ergebnis der Extraktion
type extractResult struct {
	Template *extractor.TemplateResult
	Boxes    []extractor.BoundingBox
	Err      error
}

// NewWorkerPool erstellt einen neuen Worker-Pool für die Extraktion
func NewWorkerPool(provider extractor.Provider) *WorkerPool {
	// Container-bewusste Konfiguration: Verwende 75% der verfügbaren CPUs, mindestens 2
	availableCPUs := runtime.NumCPU()
	workerCount := max(2, (availableCPUs*3)/4)

	log.Infof("Initializing template extraction worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		provider:    provider,
		jobs:        make(chan *extractJob, workerCount*2), // Puffer für Jobs
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}

	pool.startWorkers()

	return pool
}

// startWorkers startet die Worker-Goroutinen
func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		go func(workerID int) {
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case job, ok := <-p.jobs:
					if !ok {
						log.Debugf("Worker %d shutting down (job channel closed)", workerID)
						return
					}

					p.activeJobsMutex.Lock()
					p.activeJobs++
					jobCount := p.activeJobs
					p.activeJobsMutex.Unlock()

					log.Debugf("Worker %d extracting template from %s (active jobs: %d)",
						workerID, job.source, jobCount)

					startTime := time.Now()

					result := &extractResult{}
					if job.detectOnly {
						result.Boxes, result.Err = p.provider.DetectFaces(job.ctx, job.imageBytes)
					} else {
						result.Template, result.Err = p.provider.Extract(job.ctx, job.imageBytes)
					}

					p.activeJobsMutex.Lock()
					p.activeJobs--
					p.activeJobsMutex.Unlock()

					// Direkt an die anfragende Goroutine senden
					select {
					case job.resultCh <- result:
					default:
						log.Warnf("Worker %d: Could not send result, channel might be closed", workerID)
					}

					log.Debugf("Worker %d completed extraction in %v", workerID, time.Since(startTime))

				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

// submit reiht einen Job ein und wartet auf sein Ergebnis
func (p *WorkerPool) submit(ctx context.Context, job *extractJob) (*extractResult, error) {
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-job.resultCh:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Extract extrahiert ein Gesichts-Template asynchron über den Worker-Pool
func (p *WorkerPool) Extract(ctx context.Context, imageBytes []byte, source string) (*extractor.TemplateResult, error) {
	job := &extractJob{
		ctx:        ctx,
		imageBytes: imageBytes,
		source:     source,
		resultCh:   make(chan *extractResult, 1),
	}

	result, err := p.submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return result.Template, result.Err
}

// DetectFaces ermittelt Begrenzungsrahmen asynchron über den Worker-Pool
func (p *WorkerPool) DetectFaces(ctx context.Context, imageBytes []byte, source string) ([]extractor.BoundingBox, error) {
	job := &extractJob{
		ctx:        ctx,
		imageBytes: imageBytes,
		source:     source,
		detectOnly: true,
		resultCh:   make(chan *extractResult, 1),
	}

	result, err := p.submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return result.Boxes, result.Err
}

// ActiveJobCount gibt die Anzahl der aktuell aktiven Jobs zurück
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// GetWorkerCount gibt die Anzahl der Worker im Pool zurück
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}

// GetQueueCapacity gibt die Kapazität der Job-Queue zurück
func (p *WorkerPool) GetQueueCapacity() int {
	return cap(p.jobs)
}

// Shutdown fährt den Worker-Pool herunter
func (p *WorkerPool) Shutdown() {
	close(p.shutdown)
	close(p.jobs)
}

// Hilfsfunktion max
func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
