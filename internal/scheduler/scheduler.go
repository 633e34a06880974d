// Package scheduler periodically sweeps for tasks that are due within the
// next day or already overdue and posts a reminder to the project's webhook
// channels. Each task gets at most one reminder per kind per day.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/taskboard-dev/taskboard/db"
	"github.com/taskboard-dev/taskboard/internal/models"
	"github.com/taskboard-dev/taskboard/internal/services"
	"github.com/taskboard-dev/taskboard/internal/types"
)

const (
	defaultSweepInterval = 15 * time.Minute
	dueSoonWindow        = 24 * time.Hour
	reminderCooldown     = 24 * time.Hour
)

type Scheduler struct {
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs an immediate sweep, then one per interval until Stop.
func (s *Scheduler) Start() {
	log.Println("Starting reminder scheduler...")

	go func() {
		s.sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	log.Println("Stopping reminder scheduler...")
	s.cancel()
}

func (s *Scheduler) sweep() {
	now := time.Now()

	var tasks []models.Task

	err := db.DB.Preload("Project").
		Where("due_date IS NOT NULL AND due_date < ? AND status != ?", now.Add(dueSoonWindow), types.StatusDone).
		Find(&tasks).Error

	if err != nil {
		log.Printf("Reminder sweep failed: %v", err)
		return
	}

	sent := 0

	for _, task := range tasks {
		if task.Project.DeletedAt.Valid {
			continue
		}

		if task.Project.DiscordWebhook == "" && task.Project.SlackWebhook == "" {
			continue
		}

		kind := services.ReminderDueSoon
		if task.DueDate.Before(now) {
			kind = services.ReminderOverdue
		}

		if s.remindedRecently(task.ID, kind, now) {
			continue
		}

		if err := services.SendTaskReminder(task.Project, task, kind); err != nil {
			log.Printf("Failed to send %s reminder for task %d: %v", kind, task.ID, err)
			continue
		}

		entry := models.ReminderLog{TaskID: task.ID, Kind: kind, SentAt: now}

		if err := db.DB.Create(&entry).Error; err != nil {
			log.Printf("Failed to record reminder for task %d: %v", task.ID, err)
		}

		sent++
	}

	if sent > 0 {
		log.Printf("Reminder sweep sent %d notifications", sent)
	}
}

func (s *Scheduler) remindedRecently(taskID uint, kind string, now time.Time) bool {
	var count int64

	err := db.DB.Model(&models.ReminderLog{}).
		Where("task_id = ? AND kind = ? AND sent_at > ?", taskID, kind, now.Add(-reminderCooldown)).
		Count(&count).Error

	if err != nil {
		log.Printf("Reminder lookup failed for task %d: %v", taskID, err)
		return true
	}

	return count > 0
}
