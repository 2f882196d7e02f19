package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/Freeeeeet/booking_engine/internal/app"
	"github.com/Freeeeeet/booking_engine/internal/calendar"
	"github.com/Freeeeeet/booking_engine/internal/config"
	"github.com/Freeeeeet/booking_engine/internal/controller"
	"github.com/Freeeeeet/booking_engine/internal/controller/handlers"
	"github.com/Freeeeeet/booking_engine/internal/events"
	"github.com/Freeeeeet/booking_engine/internal/lock"
	"github.com/Freeeeeet/booking_engine/internal/repository"
	"github.com/Freeeeeet/booking_engine/internal/repository/memory"
	"github.com/Freeeeeet/booking_engine/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stores набор хранилищ одного бэкенда
type stores struct {
	templates    service.TemplateStore
	blocked      service.BlockedIntervalStore
	appointments service.AppointmentStore
	sync         service.SyncStore
	users        service.UserStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Booking engine stopped with error", zap.Error(err))
	}

	logger.Info("Booking engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting booking engine",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.Bool("google_calendar", cfg.GoogleCredentialsFile != ""),
	)

	st, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	locker, bus, err := openCoordination(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	userService := service.NewUserService(st.users, logger)

	availabilityService := service.NewAvailabilityService(st.templates, service.TemplateDefaults{
		WeeklySchedule:       service.DefaultWeeklySchedule(),
		BufferMinutes:        cfg.Defaults.BufferMinutes,
		MaxDailyAppointments: cfg.Defaults.MaxDailyAppointments,
		AdvanceBookingDays:   cfg.Defaults.AdvanceBookingDays,
		MinNoticeHours:       cfg.Defaults.MinNoticeHours,
		Timezone:             cfg.Defaults.Timezone,
	}, logger)
	blockedService := service.NewBlockedIntervalService(st.blocked, availabilityService, logger)

	validator := service.NewValidator(availabilityService, st.blocked, st.appointments)
	slotService := service.NewSlotService(validator, cfg.SlotGranularity, logger)
	bookingService := service.NewBookingService(validator, st.appointments, locker, bus, logger)

	calendarClient, err := openCalendar(ctx, cfg, userService, logger)
	if err != nil {
		return err
	}

	syncService := service.NewSyncService(
		st.appointments,
		st.sync,
		calendarClient,
		bookingService,
		availabilityService,
		bus,
		cfg.SyncConcurrency,
		logger,
	)

	scheduler := app.NewScheduler(syncService, cfg.SyncInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return syncService.Listen(gctx)
	})

	if cfg.TelegramToken == "" {
		logger.Warn("TELEGRAM_TOKEN is not set, running without the bot")
	} else {
		botInstance, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}

		cmdHandlers := handlers.NewHandlers(
			userService,
			bookingService,
			slotService,
			availabilityService,
			blockedService,
			syncService,
			logger,
		)

		botController := controller.NewBotController(botInstance, cmdHandlers, logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot menu not updated", zap.Error(err))
		}

		notifier := controller.NewNotifier(bus, botInstance, userService, bookingService, availabilityService, logger)

		g.Go(func() error {
			return notifier.Run(gctx)
		})
		g.Go(func() error {
			return botController.Start(gctx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return &stores{
			templates:    memory.NewTemplateStore(),
			blocked:      memory.NewBlockedIntervalStore(),
			appointments: memory.NewAppointmentStore(),
			sync:         memory.NewSyncStore(),
			users:        memory.NewUserStore(),
		}, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return &stores{
		templates:    repository.NewTemplateRepository(pool),
		blocked:      repository.NewBlockedIntervalRepository(pool),
		appointments: repository.NewAppointmentRepository(pool),
		sync:         repository.NewSyncRepository(pool),
		users:        repository.NewUserRepository(pool),
	}, pool.Close, nil
}

// openCoordination выбирает блокировку и шину: Redis для нескольких экземпляров, иначе в памяти процесса.
// Клиент Redis закрывается вместе с шиной.
func openCoordination(ctx context.Context, cfg *config.Config, logger *zap.Logger) (lock.Locker, events.Bus, error) {
	if cfg.RedisAddr == "" {
		return lock.NewMemoryLocker(cfg.ReservationTimeout, cfg.ReservationWait, logger),
			events.NewMemoryBus(logger),
			nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	return lock.NewRedisLocker(client, cfg.ReservationTimeout, cfg.ReservationWait, logger),
		events.NewRedisBus(client, logger),
		nil
}

func openCalendar(ctx context.Context, cfg *config.Config, resolver calendar.CalendarIDResolver, logger *zap.Logger) (calendar.Client, error) {
	if cfg.GoogleCredentialsFile == "" {
		logger.Warn("GOOGLE_CREDENTIALS_FILE is not set, using in-memory calendar")
		return calendar.NewMemoryCalendar(nil), nil
	}

	client, err := calendar.NewGoogleCalendar(ctx, cfg.GoogleCredentialsFile, resolver, logger)
	if err != nil {
		return nil, fmt.Errorf("create google calendar: %w", err)
	}
	return client, nil
}
