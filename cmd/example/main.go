package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	translations "github.com/goliatone/go-translations"
	"github.com/goliatone/go-translations/internal/logging/gologger"
	"github.com/goliatone/go-translations/translation"
	"github.com/google/uuid"
)

func main() {
	ctx := context.Background()

	provider, err := gologger.NewProvider(gologger.Config{Level: "info", Format: "console"})
	if err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	cfg := translations.DefaultConfig()
	cfg.Locales = []string{"en", "es", "fr"}
	cfg.DefaultLocale = "en"

	module, err := translations.New(cfg, translations.WithLoggerProvider(provider))
	if err != nil {
		log.Fatalf("configure module: %v", err)
	}
	if err := module.Start(ctx); err != nil {
		log.Fatalf("start module: %v", err)
	}
	defer module.Stop()

	categoryID := uuid.New()
	if _, err := module.Records().Upsert(ctx, &translation.Record{
		EntityType: translation.EntityCategory,
		EntityID:   categoryID,
		Locale:     "en",
		Fields:     map[string]any{"name": "Announcements", "description": "Official updates"},
		IsSource:   true,
		Version:    1,
	}); err != nil {
		log.Fatalf("seed source record: %v", err)
	}

	result, err := module.Manager().ScheduleTranslations(ctx, translation.EntityCategory, categoryID, "en", 1)
	if err != nil {
		log.Fatalf("schedule translations: %v", err)
	}
	fmt.Printf("scheduled %d task(s) for locales %v\n", result.Created, result.Targets)

	// The in-process bus dispatches synchronously, so the worker has already
	// produced the translated records.
	records, err := module.Records().ListByEntity(ctx, translation.EntityCategory, categoryID)
	if err != nil {
		log.Fatalf("list records: %v", err)
	}
	for _, record := range records {
		fields, _ := json.Marshal(record.Fields)
		fmt.Printf("  %-3s source=%-5v version=%d fields=%s\n", record.Locale, record.IsSource, record.Version, fields)
	}

	tasks, err := module.Tasks().ListByEntity(ctx, translation.EntityCategory, categoryID)
	if err != nil {
		log.Fatalf("list tasks: %v", err)
	}
	for _, task := range tasks {
		fmt.Printf("  task %s locale=%s status=%s\n", task.ID, task.TargetLocale, task.Status)
	}
}
