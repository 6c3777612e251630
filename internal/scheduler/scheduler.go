package scheduler

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/flashbot/internal/storage"
)

// Default notification window (hours of day, UTC)
const (
	DefaultStartHour = 9
	DefaultEndHour   = 21
)

// ReviewInterval is how long a card may sit unreviewed before it counts as due.
const ReviewInterval = 24 * time.Hour

// Notifier delivers review reminders to users
type Notifier interface {
	SendReminder(userID int64, count int) error
}

// Scheduler runs the periodic review reminder job
type Scheduler struct {
	scheduler *gocron.Scheduler
	store     storage.Store
	notifier  Notifier
}

// New creates a new scheduler instance
func New(store storage.Store, notifier Notifier) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		notifier:  notifier,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() {
	s.scheduler.Every(1).Hour().Do(s.checkAndSendReminders)
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// notificationWindow returns the allowed hours, with env overrides
func notificationWindow() (int, int) {
	start := DefaultStartHour
	end := DefaultEndHour

	if v := os.Getenv("NOTIFICATION_START_HOUR"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h >= 0 && h <= 23 {
			start = h
		}
	}
	if v := os.Getenv("NOTIFICATION_END_HOUR"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h >= 0 && h <= 23 {
			end = h
		}
	}
	return start, end
}

// checkAndSendReminders nudges every user who has cards due for review
func (s *Scheduler) checkAndSendReminders() {
	currentHour := time.Now().UTC().Hour()
	startHour, endHour := notificationWindow()
	if currentHour < startHour || currentHour > endHour {
		log.Printf("Current hour %d is outside notification hours (%d-%d), skipping reminders",
			currentHour, startHour, endHour)
		return
	}

	ctx := context.Background()
	users, err := s.store.Users(ctx)
	if err != nil {
		log.Printf("Error getting users for notification: %v", err)
		return
	}

	cutoff := time.Now().Add(-ReviewInterval)
	for _, userID := range users {
		count, err := s.store.CountDueCards(ctx, userID, cutoff)
		if err != nil {
			log.Printf("Error counting due cards for user %d: %v", userID, err)
			continue
		}
		if count == 0 {
			continue
		}
		if err := s.notifier.SendReminder(userID, count); err != nil {
			log.Printf("Error sending reminder to user %d: %v", userID, err)
		}
	}
}

// RunManualCheck forces a reminder check for a specific user
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) error {
	count, err := s.store.CountDueCards(ctx, userID, time.Now().Add(-ReviewInterval))
	if err != nil {
		return err
	}
	if count > 0 {
		return s.notifier.SendReminder(userID, count)
	}
	return nil
}
