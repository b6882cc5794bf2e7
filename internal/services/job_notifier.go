package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/teachpack-backend/internal/clients/redis"
	"github.com/yungbote/teachpack-backend/internal/logger"
	"github.com/yungbote/teachpack-backend/internal/sse"
)

// JobNotifier pushes workflow lifecycle events to the owner's SSE channel.
// When a Redis bus is configured the event also fans out to other replicas;
// the bus forwarder is what feeds the local hub in that case.
type JobNotifier interface {
	JobCreated(userID uuid.UUID, jobID uuid.UUID, jobType string)
	JobProgress(userID uuid.UUID, jobID uuid.UUID, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, jobID uuid.UUID, stage string, errorMessage string)
	JobDone(userID uuid.UUID, jobID uuid.UUID, status string)
}

type jobNotifier struct {
	log *logger.Logger
	hub *sse.SSEHub
	bus redis.SSEBus
}

func NewJobNotifier(log *logger.Logger, hub *sse.SSEHub, bus redis.SSEBus) JobNotifier {
	return &jobNotifier{
		log: log.With("service", "JobNotifier"),
		hub: hub,
		bus: bus,
	}
}

func (n *jobNotifier) send(msg sse.SSEMessage) {
	if n.bus != nil {
		if err := n.bus.Publish(context.Background(), msg); err == nil {
			return
		} else {
			n.log.Warn("SSE bus publish failed; broadcasting locally", "error", err)
		}
	}
	n.hub.Broadcast(msg)
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, jobID uuid.UUID, jobType string) {
	n.send(sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEventJobCreated,
		Data: map[string]any{
			"job_id":   jobID,
			"job_type": jobType,
		},
	})
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, jobID uuid.UUID, stage string, progress int, message string) {
	n.send(sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEventJobProgress,
		Data: map[string]any{
			"job_id":   jobID,
			"stage":    stage,
			"progress": progress,
			"message":  message,
		},
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, jobID uuid.UUID, stage string, errorMessage string) {
	n.send(sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEventJobFailed,
		Data: map[string]any{
			"job_id": jobID,
			"stage":  stage,
			"error":  errorMessage,
		},
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, jobID uuid.UUID, status string) {
	n.send(sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEventJobDone,
		Data: map[string]any{
			"job_id": jobID,
			"status": status,
		},
	})
}
