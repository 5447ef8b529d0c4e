package workers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/meetlens/meetlens/internal/pipeline"
)

// TranscriptionWorkerPool consumes transcription jobs from a Redis stream
// and runs each through the pipeline orchestrator. Consumers ack every
// message they picked up, including failed ones; retry policy lives with
// the producer.
type TranscriptionWorkerPool struct {
	Redis        *redis.Client
	Orchestrator *pipeline.Orchestrator
	NumWorkers   int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *TranscriptionWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Orchestrator == nil {
		return errors.New("TranscriptionWorkerPool missing dependency: Redis/Orchestrator must be set")
	}
	if p.Stream == "" {
		p.Stream = "transcriptions:stream"
	}
	if p.Group == "" {
		p.Group = "transcription-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "tw"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 3
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *TranscriptionWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func normalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "hu", "hu-HU":
		return "hu-HU"
	case "en", "en-US":
		return "en-US"
	default:
		if v == "" {
			return "hu-HU"
		}
		return v
	}
}

func (p *TranscriptionWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	jobID := getStr("job_id")
	objectPath := getStr("object_path")
	if jobID == "" || objectPath == "" {
		p.Logger.WithField("redis_id", msg.ID).Warn("dropping malformed job message")
		return
	}

	duration, _ := strconv.ParseFloat(getStr("duration_seconds"), 64)
	multiPass, _ := strconv.ParseBool(getStr("multi_pass"))

	job := pipeline.JobRequest{
		JobID:           jobID,
		OrganizationID:  getStr("organization_id"),
		ObjectPath:      objectPath,
		Language:        normalizeLanguage(getStr("language")),
		DurationSeconds: duration,
		MultiPass:       multiPass,
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":        msg.ID,
		"job_id":          jobID,
		"organization_id": job.OrganizationID,
	})
	log.Info("picked up transcription job")

	if _, err := p.Orchestrator.Run(ctx, job); err != nil {
		log.WithError(err).Error("transcription job failed")
		return
	}
}

// RedisStatusSink publishes progress and terminal updates to per-job
// pub/sub channels, mirroring what API clients subscribe to.
type RedisStatusSink struct {
	Redis *redis.Client
}

func (s *RedisStatusSink) channel(jobID string) string {
	return "job:" + jobID + ":status"
}

func (s *RedisStatusSink) publish(ctx context.Context, jobID string, payload map[string]any) {
	if s == nil || s.Redis == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = s.Redis.Publish(ctx, s.channel(jobID), string(body)).Err()
}

func (s *RedisStatusSink) Progress(ctx context.Context, jobID string, chunksCompleted, chunksTotal int) {
	s.publish(ctx, jobID, map[string]any{
		"type":             "status",
		"status":           "processing",
		"chunks_completed": chunksCompleted,
		"chunks_total":     chunksTotal,
	})
}

func (s *RedisStatusSink) Completed(ctx context.Context, jobID string, result *pipeline.JobResult) {
	s.publish(ctx, jobID, map[string]any{
		"type":       "status",
		"status":     "completed",
		"confidence": result.Confidence,
		"pass_count": result.PassCount,
		"warnings":   result.Warnings,
	})
}

func (s *RedisStatusSink) Failed(ctx context.Context, jobID, reason string) {
	s.publish(ctx, jobID, map[string]any{
		"type":    "status",
		"status":  "failed",
		"message": reason,
	})
}
