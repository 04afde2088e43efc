package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/pkg/kvstore"
	"github.com/google/uuid"
)

const (
	postReminderLead = 5 * time.Minute
	maxPostLength    = 5000
)

// SchedulePost stores a social post the vendor plans to publish.
func (s *Service) SchedulePost(ctx context.Context, vendor *domain.User, req domain.CreatePostRequest) (*domain.ScheduledPost, error) {
	if err := RequireRole(vendor, domain.RoleVendor); err != nil {
		return nil, err
	}
	content := sanitizeText(req.Content)
	if content == "" {
		return nil, invalidInput("content is required")
	}
	if utf8.RuneCountInString(content) > maxPostLength {
		return nil, invalidInput("content must be at most %d characters", maxPostLength)
	}
	now := s.now()
	if !req.ScheduledAt.After(now) {
		return nil, invalidInput("scheduled_at must be in the future")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate post id: %w", err)
	}
	post := domain.ScheduledPost{
		ID:          id,
		VendorID:    vendor.ID,
		Content:     content,
		Hashtags:    sanitizeText(req.Hashtags),
		ScheduledAt: req.ScheduledAt.UTC(),
		CreatedAt:   now,
	}
	if err := s.posts.Put(ctx, post, 0, vendor.ID.String(), id.String()); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts returns the vendor's scheduled posts by scheduled time.
func (s *Service) ListPosts(ctx context.Context, vendor *domain.User) ([]domain.ScheduledPost, error) {
	if err := RequireRole(vendor, domain.RoleVendor); err != nil {
		return nil, err
	}
	posts, err := s.posts.List(ctx, vendor.ID.String())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].ScheduledAt.Before(posts[j].ScheduledAt) })
	return posts, nil
}

// DeletePost removes one of the vendor's posts.
func (s *Service) DeletePost(ctx context.Context, vendor *domain.User, postID uuid.UUID) error {
	if err := RequireRole(vendor, domain.RoleVendor); err != nil {
		return err
	}
	if _, err := s.posts.Get(ctx, vendor.ID.String(), postID.String()); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return ErrPostNotFound
		}
		return err
	}
	return s.posts.Delete(ctx, vendor.ID.String(), postID.String())
}

// ProcessPostReminders notifies vendors once a post is within five minutes
// of its time, and completes posts whose time has passed.
func (s *Service) ProcessPostReminders(ctx context.Context) (reminded int, completed int, err error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		return 0, 0, err
	}

	now := s.now()
	for _, post := range posts {
		if post.Completed {
			continue
		}
		changed := false
		if !post.Notified && !now.Before(post.ScheduledAt.Add(-postReminderLead)) {
			if _, err := s.Notify(ctx, post.VendorID, domain.NotificationPostReminder,
				"Time to post",
				fmt.Sprintf("Your scheduled post is due at %s: %s", post.ScheduledAt.Format(time.Kitchen), truncateRunes(post.Content, 80)),
			); err != nil {
				s.logger.Warn("failed to notify post reminder", "post_id", post.ID, "error", err)
				continue
			}
			s.publish(ctx, domain.EventPostReminderDue, domain.PostReminderEvent{
				PostID:      post.ID,
				VendorID:    post.VendorID,
				ScheduledAt: post.ScheduledAt,
			})
			post.Notified = true
			reminded++
			changed = true
		}
		if post.Notified && !now.Before(post.ScheduledAt) {
			post.Completed = true
			completed++
			changed = true
		}
		if changed {
			if err := s.posts.Put(ctx, post, 0, post.VendorID.String(), post.ID.String()); err != nil {
				return reminded, completed, err
			}
		}
	}
	return reminded, completed, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
