package embedding

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
)

// Preload fills in every exemplar, intent-example and knowledge-document
// vector missing from the configuration, using a bounded worker pool.
// Called once at startup; any failure is a fatal configuration problem
// because the router must not serve without its semantic anchors.
func Preload(ctx context.Context, provider Provider, cfg *config.RouterConfig) error {
	type slot struct {
		text string
		dst  *[]float32
	}

	var slots []slot
	for i := range cfg.SafetyGate.Exemplars {
		ex := &cfg.SafetyGate.Exemplars[i]
		if len(ex.Vector) == 0 {
			slots = append(slots, slot{text: ex.Text, dst: &ex.Vector})
		}
	}
	for i := range cfg.Intents.Definitions {
		for j := range cfg.Intents.Definitions[i].Examples {
			exm := &cfg.Intents.Definitions[i].Examples[j]
			if len(exm.Vector) == 0 {
				slots = append(slots, slot{text: exm.Text, dst: &exm.Vector})
			}
		}
	}
	for i := range cfg.Knowledge {
		doc := &cfg.Knowledge[i]
		if len(doc.Vector) == 0 {
			slots = append(slots, slot{text: doc.Content, dst: &doc.Vector})
		}
	}

	if len(slots) == 0 {
		logging.Infof("All configured vectors present, nothing to preload")
		return nil
	}

	startTime := time.Now()
	numWorkers := runtime.NumCPU() * 2
	if numWorkers > len(slots) {
		numWorkers = len(slots)
	}

	logging.Infof("Preloading %d embeddings with %d workers", len(slots), numWorkers)

	type result struct {
		index     int
		embedding []float32
		err       error
	}

	slotChan := make(chan int, len(slots))
	resultChan := make(chan result, len(slots))
	for i := range slots {
		slotChan <- i
	}
	close(slotChan)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range slotChan {
				vec, err := provider.Embed(ctx, slots[i].text)
				resultChan <- result{index: i, embedding: vec, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var firstError error
	successCount := 0
	for res := range resultChan {
		if res.err != nil {
			if firstError == nil {
				firstError = fmt.Errorf("failed to embed %q: %w", truncate(slots[res.index].text, 60), res.err)
			}
			continue
		}
		*slots[res.index].dst = res.embedding
		successCount++
	}

	logging.Infof("Preloaded %d/%d embeddings in %v", successCount, len(slots), time.Since(startTime))

	return firstError
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
