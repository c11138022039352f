package service

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/school-chat/internal/apperr"
	"github.com/fathima-sithara/school-chat/internal/events"
	"github.com/fathima-sithara/school-chat/internal/models"
	"go.uber.org/zap"
)

var _ events.FanoutHandler = (*Fanout)(nil)

// Fanout turns school events into one notification per recipient, written with a
// single bulk insert per event and then pushed to whoever is online.
type Fanout struct {
	notifier *Dispatcher
	roster   RosterSource
	rt       Broadcaster
	log      *zap.SugaredLogger
}

func NewFanout(notifier *Dispatcher, roster RosterSource, rt Broadcaster, log *zap.SugaredLogger) *Fanout {
	return &Fanout{notifier: notifier, roster: roster, rt: rt, log: log}
}

func (f *Fanout) Announcement(ctx context.Context, ev events.AnnouncementEvent) error {
	if ev.Title == "" {
		return apperr.Validation("announcement title is required")
	}
	body := ev.Message
	if body == "" {
		body = ev.Title
	}

	var batch []models.Notification
	seen := make(map[models.Role]bool)
	for _, raw := range ev.TargetRoles {
		role, ok := models.ParseRole(raw)
		if !ok || !role.IsParticipant() || seen[role] {
			continue
		}
		seen[role] = true
		ids, err := f.roster.UserIDsByRole(ctx, role)
		if err != nil {
			return fmt.Errorf("list %s users: %w", role, err)
		}
		for _, id := range ids {
			batch = append(batch, models.Notification{
				UserID:    id,
				UserModel: role,
				Type:      models.NotifySystem,
				Title:     "New Announcement: " + ev.Title,
				Message:   body,
				Sender:    "Admin",
				Role:      role,
				Data:      &models.NotificationData{AnnouncementID: ev.ID},
			})
		}
	}
	return f.deliver(ctx, "announcement", batch)
}

func (f *Fanout) AssignmentCreated(ctx context.Context, ev events.AssignmentEvent) error {
	if ev.CourseID == "" || ev.Title == "" {
		return apperr.Validation("assignment courseId and title are required")
	}
	students, err := f.roster.StudentIDsByCourse(ctx, ev.CourseID)
	if err != nil {
		return fmt.Errorf("list course students: %w", err)
	}

	body := "A new assignment has been posted"
	if !ev.DueDate.IsZero() {
		body = "Due on " + ev.DueDate.Format("Jan 2, 2006")
	}
	batch := make([]models.Notification, 0, len(students))
	for _, id := range students {
		batch = append(batch, models.Notification{
			UserID:      id,
			UserModel:   models.RoleStudent,
			Type:        models.NotifyAssignment,
			Title:       "New Assignment: " + ev.Title,
			Message:     body,
			Sender:      ev.TeacherID,
			SenderModel: models.RoleTeacher,
			Role:        models.RoleStudent,
			Data:        &models.NotificationData{AssignmentID: ev.ID, CourseID: ev.CourseID},
		})
	}
	return f.deliver(ctx, "assignment", batch)
}

func (f *Fanout) Graded(ctx context.Context, ev events.GradeEvent) error {
	if ev.AssignmentID == "" {
		return apperr.Validation("assignmentId is required")
	}
	title := "Assignment Graded"
	if ev.Title != "" {
		title += ": " + ev.Title
	}

	batch := make([]models.Notification, 0, len(ev.Grades))
	for _, g := range ev.Grades {
		if g.StudentID == "" {
			continue
		}
		body := fmt.Sprintf("You scored %g", g.Grade)
		if g.Feedback != "" {
			body += ". " + g.Feedback
		}
		batch = append(batch, models.Notification{
			UserID:      g.StudentID,
			UserModel:   models.RoleStudent,
			Type:        models.NotifyGrade,
			Title:       title,
			Message:     body,
			Sender:      ev.TeacherID,
			SenderModel: models.RoleTeacher,
			Role:        models.RoleStudent,
			Data:        &models.NotificationData{AssignmentID: ev.AssignmentID},
		})
	}
	return f.deliver(ctx, "grade", batch)
}

func (f *Fanout) deliver(ctx context.Context, kind string, batch []models.Notification) error {
	if len(batch) == 0 {
		f.log.Debugw("no recipients", "kind", kind)
		return nil
	}
	created, err := f.notifier.CreateBatch(ctx, batch)
	if err != nil {
		return err
	}
	for i := range created {
		f.rt.PublishToUser(created[i].UserID, EventNotification, &created[i])
	}
	f.log.Infow("fan-out delivered", "kind", kind, "recipients", len(created))
	return nil
}
