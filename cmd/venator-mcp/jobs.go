package main

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/jobs"
	"github.com/ternarybob/venator/internal/services/tools"
)

// Job kinds for the async variants of the long-running tools.
const (
	jobKindCrawl       = "crawl"
	jobKindBatchScrape = "batch_scrape"
	jobKindResearch    = "research"
)

// submitJob queues an async run and returns the submission receipt.
func (a *app) submitJob(ctx context.Context, kind string, raw json.RawMessage, priority models.JobPriority) (interface{}, error) {
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, models.WrapError(models.KindInvalidArgument, err, "malformed arguments")
	}
	// The job handler owns execution; the async flag has served its purpose.
	delete(params, "async")

	job, err := a.jobs.Submit(ctx, kind, params, priority)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"job_id":     job.ID,
		"status":     job.Status,
		"expires_at": job.ExpiresAt,
	}, nil
}

// jobParams round-trips persisted params back through strict decoding so
// async runs honor the same schema as synchronous ones.
func (a *app) jobParams(job *models.Job, into interface{}) error {
	raw, err := json.Marshal(job.Params)
	if err != nil {
		return models.WrapError(models.KindCorruptArtifact, err, "job %s params are unreadable", job.ID)
	}
	return a.tools.DecodeArgs(raw, into)
}

// registerJobHandlers binds the async job kinds to their executors.
func registerJobHandlers(a *app) {
	a.jobs.RegisterHandler(jobKindCrawl, func(ctx context.Context, job *models.Job, progress jobs.ProgressFunc) (interface{}, error) {
		var args tools.CrawlDeepArgs
		if err := a.jobParams(job, &args); err != nil {
			return nil, err
		}
		result, err := a.crawler.Crawl(ctx, args.URL, a.crawlConfigFromArgs(args), progress)
		if err != nil {
			return nil, err
		}
		a.indexCrawl(result)
		return result, nil
	})

	a.jobs.RegisterHandler(jobKindBatchScrape, func(ctx context.Context, job *models.Job, progress jobs.ProgressFunc) (interface{}, error) {
		var args tools.BatchScrapeArgs
		if err := a.jobParams(job, &args); err != nil {
			return nil, err
		}
		return a.runBatch(ctx, args, progress)
	})

	a.jobs.RegisterHandler(jobKindResearch, func(ctx context.Context, job *models.Job, progress jobs.ProgressFunc) (interface{}, error) {
		var args tools.DeepResearchArgs
		if err := a.jobParams(job, &args); err != nil {
			return nil, err
		}
		return a.research.Run(ctx, a.researchRequestFromArgs(args), progress)
	})
}
