package catalog

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений (5 полей или @every/@hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// ScheduleReload запускает периодическую перезагрузку каталога по cron-выражению.
//
// Ошибка перезагрузки логируется, прежний набор workflow остаётся.
// Планировщик останавливается при отмене ctx.
func (c *Catalog) ScheduleReload(ctx context.Context, cronExpr string) error {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	cr := cron.New(cron.WithParser(cronParser))
	cr.Schedule(schedule, cron.FuncJob(func() {
		if err := c.Reload(); err != nil {
			c.logger.Error("scheduled catalog reload failed", "error", err)
		}
	}))
	cr.Start()

	c.logger.Info("catalog reload scheduled", "cron", cronExpr)

	go func() {
		<-ctx.Done()
		<-cr.Stop().Done()
	}()
	return nil
}
