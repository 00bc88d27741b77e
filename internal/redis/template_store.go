package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-calendar/internal/schedule"
)

const templateKey = "schedule:template"

// TemplateStore keeps the working-hours template in Redis. Until an admin
// saves one, Get returns the fallback.
type TemplateStore struct {
	client   *redis.Client
	fallback schedule.Template
}

func NewTemplateStore(client *redis.Client, fallback schedule.Template) *TemplateStore {
	return &TemplateStore{client: client, fallback: fallback}
}

func (s *TemplateStore) Get(ctx context.Context) (schedule.Template, error) {
	data, err := s.client.Get(ctx, templateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.fallback, nil
	}
	if err != nil {
		return schedule.Template{}, fmt.Errorf("template store: get: %w", err)
	}

	var tpl schedule.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return schedule.Template{}, fmt.Errorf("template store: unmarshal: %w", err)
	}
	return tpl, nil
}

func (s *TemplateStore) Set(ctx context.Context, tpl schedule.Template) error {
	if err := tpl.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("template store: marshal: %w", err)
	}

	if err := s.client.Set(ctx, templateKey, data, 0).Err(); err != nil {
		return fmt.Errorf("template store: set: %w", err)
	}
	return nil
}

// Reset drops the saved template so the fallback applies again.
func (s *TemplateStore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, templateKey).Err(); err != nil {
		return fmt.Errorf("template store: reset: %w", err)
	}
	return nil
}
