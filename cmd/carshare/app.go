package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	bookingapp "carshare/internal/app/handlers/booking"
	messagesapp "carshare/internal/app/handlers/messages"
	paymentsapp "carshare/internal/app/handlers/payments"
	reviewsapp "carshare/internal/app/handlers/reviews"
	vehicleapp "carshare/internal/app/handlers/vehicles"
	"carshare/internal/app/middleware"
	"carshare/internal/app/notify"
	appoutbox "carshare/internal/app/outbox"
	"carshare/internal/app/policies"
	"carshare/internal/app/queries"
	authsvc "carshare/internal/app/services/auth"
	"carshare/internal/app/uow"
	domainauth "carshare/internal/domain/auth"
	domainbooking "carshare/internal/domain/booking"
	domainuser "carshare/internal/domain/user"
	"carshare/internal/infra/broker/kafka"
	"carshare/internal/infra/config"
	mongostore "carshare/internal/infra/db/mongo"
	"carshare/internal/infra/email"
	"carshare/internal/infra/geocoding"
	ginserver "carshare/internal/infra/http/gin"
	"carshare/internal/infra/inbox"
	"carshare/internal/infra/obs"
	outboxinfra "carshare/internal/infra/outbox"
	"carshare/internal/infra/payments"
	"carshare/internal/infra/security"
	"carshare/internal/infra/storage/memory"
	"carshare/internal/infra/storage/s3"
	"carshare/internal/infra/validation"
	"carshare/internal/infra/vindecoder"
)

const notificationsConsumer = "notifications"

type runner struct {
	name string
	run  func(ctx context.Context) error
}

type application struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *obs.Metrics
	commands commands.Bus
	queries  queries.Bus
	auth     *authsvc.Service
	ready    func(ctx context.Context) error
	runners  []runner
	worker   *outboxinfra.Worker
	closers  []func(ctx context.Context) error
}

// backend is the storage-specific part of the wiring.
type backend struct {
	factory     uow.UoWFactory
	sequence    policies.Sequence
	idempotency middleware.IdempotencyStore
	users       domainuser.Repository
	sessions    domainauth.SessionStore
	ready       func(ctx context.Context) error
	mongo       *mongostore.Client
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger, metrics: obs.NewMetrics()}

	store, err := app.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	dispatcher := &notify.Dispatcher{
		UoWFactory: store.factory,
		Notifier:   app.notifier(),
		Telemetry:  app.metrics,
		Logger:     logger,
	}
	box, err := app.eventPipeline(store, dispatcher)
	if err != nil {
		app.close()
		return nil, err
	}

	gateway := app.paymentGateway()
	uploader := app.uploader()
	geocoder := app.geocoder()

	app.auth = &authsvc.Service{
		Users:      store.users,
		Sessions:   store.sessions,
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}
	app.ready = store.ready
	app.commands = app.commandBus(store, box, gateway, uploader, geocoder)
	app.queries = app.queryBus(store)
	return app, nil
}

func (a *application) openBackend(ctx context.Context) (backend, error) {
	if a.cfg.Storage != config.StorageMongo {
		factory := memory.NewFactory()
		a.logger.Warn("using in-memory storage; data is lost on restart")
		return backend{
			factory:     factory,
			sequence:    memory.NewSequence(),
			idempotency: memory.NewIdempotencyStore(a.cfg.IdempotencyTTL),
			users:       factory.UserRepo,
			sessions:    memory.NewSessionStore(),
			ready:       func(context.Context) error { return nil },
		}, nil
	}

	client, err := mongostore.New(ctx, a.cfg.MongoURI, a.cfg.MongoDB)
	if err != nil {
		return backend{}, fmt.Errorf("mongo connect: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	if err := mongostore.EnsureIndexes(ctx, client.DB, a.cfg.IdempotencyTTL); err != nil {
		a.close()
		return backend{}, fmt.Errorf("mongo indexes: %w", err)
	}
	factory := mongostore.NewFactory(client.DB, a.cfg.MongoTransactions)
	a.logger.Info("mongo storage ready", "db", a.cfg.MongoDB, "transactions", a.cfg.MongoTransactions)
	return backend{
		factory:     factory,
		sequence:    mongostore.NewSequence(client.DB),
		idempotency: mongostore.NewIdempotencyStore(client.DB),
		users:       factory.UserRepo,
		sessions:    mongostore.NewSessionStore(client.DB),
		ready:       client.Ping,
		mongo:       client,
	}, nil
}

// eventPipeline returns the outbox handlers write to. In memory mode records go
// straight to the dispatcher after commit. With Mongo they are stored and a worker
// publishes them to Kafka, or to an in-process producer when no broker is set; either
// way consumption is deduplicated through the inbox.
func (a *application) eventPipeline(store backend, dispatcher *notify.Dispatcher) (appoutbox.Outbox, error) {
	if store.mongo == nil {
		return memory.NewOutbox(dispatcher, a.logger), nil
	}
	db := store.mongo.DB
	dedup := inbox.Deduplicator{
		Ledger: inbox.NewStore(db, notificationsConsumer),
		Next:   dispatcher,
		Logger: a.logger,
	}
	records := outboxinfra.NewStore(db)
	a.worker = &outboxinfra.Worker{
		Store:       records,
		Interval:    a.cfg.OutboxPollInterval,
		TopicPrefix: a.cfg.KafkaTopicPrefix,
		Backoff:     a.cfg.RetryBackoff,
		Logger:      a.logger,
	}

	if len(a.cfg.KafkaBrokers) == 0 {
		a.worker.Producer = outboxinfra.LocalProducer{Handler: dedup}
		a.runners = append(a.runners, runner{name: "outbox", run: a.worker.Run})
		return records, nil
	}

	producer, err := kafka.NewProducer(a.cfg.KafkaBrokers, "carshare-outbox", nil)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return producer.Close() })
	a.worker.Producer = producer

	consumerCfg := sarama.NewConfig()
	consumerCfg.ClientID = "carshare-notifications"
	consumer, err := kafka.NewConsumer(a.cfg.KafkaBrokers, a.cfg.KafkaGroupID, consumerCfg, kafka.EventHandler{
		Handler: dedup,
		Backoff: a.cfg.RetryBackoff,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return consumer.Close() })
	topic := a.worker.TopicFor(domainbooking.EventRequested)
	a.runners = append(a.runners,
		runner{name: "outbox", run: a.worker.Run},
		runner{name: "notifications", run: func(ctx context.Context) error { return consumer.Run(ctx, []string{topic}) }},
	)
	return records, nil
}

func (a *application) notifier() policies.Notifier {
	if a.cfg.SendgridAPIKey == "" {
		return email.LogNotifier{Logger: a.logger}
	}
	ids, err := email.ParseTemplateIDs(a.cfg.SendgridTemplates)
	if err != nil {
		a.logger.Warn("ignoring SENDGRID_TEMPLATES", "error", err)
		ids = nil
	}
	return email.NewSendGrid(email.Options{
		APIKey:      a.cfg.SendgridAPIKey,
		From:        a.cfg.EmailFrom,
		FromName:    a.cfg.EmailFromName,
		TemplateIDs: ids,
	}, a.logger)
}

func (a *application) paymentGateway() policies.PaymentGateway {
	if !a.cfg.PaymentsEnabled() {
		a.logger.Warn("payments disabled: STRIPE_SECRET_KEY is not set")
		return payments.Unconfigured{}
	}
	return payments.NewStripe(payments.Options{
		SecretKey:     a.cfg.StripeSecretKey,
		WebhookSecret: a.cfg.StripeWebhookSecret,
		SuccessURL:    a.cfg.PaymentSuccessURL,
		CancelURL:     a.cfg.PaymentCancelURL,
	}, nil, a.logger)
}

func (a *application) uploader() policies.Uploader {
	if a.cfg.S3Endpoint == "" {
		return s3.NoopUploader{}
	}
	client, err := s3.NewClient(s3.Options{
		Endpoint:      a.cfg.S3Endpoint,
		UseSSL:        a.cfg.S3UseSSL,
		AccessKey:     a.cfg.S3AccessKey,
		SecretKey:     a.cfg.S3SecretKey,
		Bucket:        a.cfg.S3Bucket,
		PublicBaseURL: a.cfg.S3PublicEndpoint,
	}, a.logger)
	if err != nil {
		a.logger.Warn("photo uploads disabled", "error", err)
		return s3.NoopUploader{}
	}
	return client
}

func (a *application) geocoder() policies.Geocoder {
	var geocoder policies.Geocoder = geocoding.NewNominatim(a.cfg.GeocoderURL, a.cfg.GeocoderUserAgent)
	if a.cfg.RedisAddr == "" {
		return geocoder
	}
	cache := geocoding.NewRedisCache(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	a.closers = append(a.closers, func(context.Context) error { return cache.Close() })
	return geocoding.CachedGeocoder{Next: geocoder, Cache: cache, TTL: a.cfg.GeocodeCacheTTL, Logger: a.logger}
}

func (a *application) commandBus(store backend, box appoutbox.Outbox, gateway policies.PaymentGateway, uploader policies.Uploader, geocoder policies.Geocoder) commands.Bus {
	logger := a.logger
	encoder := appoutbox.JSONEventEncoder{}
	bus := commands.NewInMemoryBus()

	commands.RegisterHandler[bookingapp.CreateBookingCommand, *dto.Booking](bus, bookingapp.CreateBookingCommand{}.Key(), &bookingapp.CreateBookingHandler{
		Sequence:  store.sequence,
		Outbox:    box,
		Encoder:   encoder,
		Telemetry: a.metrics,
		Logger:    logger,
	})
	commands.RegisterHandler[bookingapp.QuoteExtensionCommand, *dto.ExtensionQuote](bus, bookingapp.QuoteExtensionCommand{}.Key(), &bookingapp.QuoteExtensionHandler{
		Payments: gateway,
		Logger:   logger,
	})
	inspections := &bookingapp.InspectionHandler{Uploader: uploader, Outbox: box, Encoder: encoder, Logger: logger}
	commands.RegisterHandler(bus, bookingapp.StartRentalCommand{}.Key(),
		commands.HandlerFunc[bookingapp.StartRentalCommand, *dto.Booking](inspections.StartRental))
	commands.RegisterHandler(bus, bookingapp.CompleteRentalCommand{}.Key(),
		commands.HandlerFunc[bookingapp.CompleteRentalCommand, *dto.Booking](inspections.CompleteRental))
	commands.RegisterHandler[bookingapp.SelectInsuranceCommand, *dto.Booking](bus, bookingapp.SelectInsuranceCommand{}.Key(), &bookingapp.SelectInsuranceHandler{
		Provider: a.cfg.InsuranceProvider,
		Logger:   logger,
	})
	commands.RegisterHandler[bookingapp.UpdateStatusCommand, *dto.Booking](bus, bookingapp.UpdateStatusCommand{}.Key(), &bookingapp.UpdateStatusHandler{
		Outbox:  box,
		Encoder: encoder,
		Logger:  logger,
	})
	commands.RegisterHandler[bookingapp.SwitchVehicleCommand, *dto.Booking](bus, bookingapp.SwitchVehicleCommand{}.Key(), &bookingapp.SwitchVehicleHandler{
		Outbox:  box,
		Encoder: encoder,
		Logger:  logger,
	})
	commands.RegisterHandler[bookingapp.BackfillCodesCommand, bookingapp.BackfillResult](bus, bookingapp.BackfillCodesCommand{}.Key(), &bookingapp.BackfillCodesHandler{
		Sequence: store.sequence,
		Logger:   logger,
	})
	commands.RegisterHandler[bookingapp.SendReturnRemindersCommand, bookingapp.RemindersResult](bus, bookingapp.SendReturnRemindersCommand{}.Key(), &bookingapp.SendReturnRemindersHandler{
		Outbox:  box,
		Encoder: encoder,
		Logger:  logger,
	})

	reconciler := &paymentsapp.Reconciler{Outbox: box, Encoder: encoder, Telemetry: a.metrics, Logger: logger}
	commands.RegisterHandler[paymentsapp.CreateCheckoutCommand, *dto.Checkout](bus, paymentsapp.CreateCheckoutCommand{}.Key(), &paymentsapp.CheckoutHandler{
		Payments: gateway,
		Logger:   logger,
	})
	commands.RegisterHandler[paymentsapp.ConfirmPaymentCommand, *dto.PaymentResult](bus, paymentsapp.ConfirmPaymentCommand{}.Key(), &paymentsapp.ConfirmPaymentHandler{
		Payments:   gateway,
		Reconciler: reconciler,
	})
	commands.RegisterHandler[paymentsapp.ConfirmExtensionCommand, *dto.PaymentResult](bus, paymentsapp.ConfirmExtensionCommand{}.Key(), &paymentsapp.ConfirmExtensionHandler{
		Payments:   gateway,
		Reconciler: reconciler,
	})
	commands.RegisterHandler[paymentsapp.HandleWebhookCommand, *dto.WebhookAck](bus, paymentsapp.HandleWebhookCommand{}.Key(), &paymentsapp.WebhookHandler{
		Payments:   gateway,
		Reconciler: reconciler,
		Logger:     logger,
	})
	commands.RegisterHandler[paymentsapp.ReconcilePaymentCommand, *dto.ReconcileResult](bus, paymentsapp.ReconcilePaymentCommand{}.Key(), &paymentsapp.ReconcileHandler{
		Payments:   gateway,
		Reconciler: reconciler,
		Lookback:   a.cfg.ReconcileLookback,
		Logger:     logger,
	})

	commands.RegisterHandler[vehicleapp.CreateVehicleCommand, *dto.Vehicle](bus, vehicleapp.CreateVehicleCommand{}.Key(), &vehicleapp.CreateVehicleHandler{
		VINs:     vindecoder.NewNHTSA(a.cfg.VINDecoderURL),
		Geocoder: geocoder,
		Outbox:   box,
		Encoder:  encoder,
		Currency: a.cfg.Currency,
		Logger:   logger,
	})
	commands.RegisterHandler[vehicleapp.UpdateVehicleCommand, *dto.Vehicle](bus, vehicleapp.UpdateVehicleCommand{}.Key(), &vehicleapp.UpdateVehicleHandler{
		Geocoder: geocoder,
		Outbox:   box,
		Encoder:  encoder,
		Currency: a.cfg.Currency,
		Logger:   logger,
	})
	commands.RegisterHandler[vehicleapp.UploadVehiclePhotoCommand, *dto.Vehicle](bus, vehicleapp.UploadVehiclePhotoCommand{}.Key(), &vehicleapp.UploadVehiclePhotoHandler{
		Uploader: uploader,
		Logger:   logger,
	})

	commands.RegisterHandler[reviewsapp.SubmitReviewCommand, *dto.Review](bus, reviewsapp.SubmitReviewCommand{}.Key(), &reviewsapp.SubmitReviewHandler{
		Outbox:  box,
		Encoder: encoder,
		Logger:  logger,
	})
	commands.RegisterHandler[messagesapp.SendMessageCommand, *dto.Message](bus, messagesapp.SendMessageCommand{}.Key(), &messagesapp.SendMessageHandler{
		Logger: logger,
	})

	return middleware.ChainCommands(
		bus,
		middleware.Observe(logger, a.metrics),
		middleware.Validation(validation.New()),
		middleware.Authorization(middleware.RequireActor{}),
		middleware.Idempotency(store.idempotency, nil),
		middleware.OutboxFlush(box),
		middleware.Transaction(store.factory, nil),
	)
}

func (a *application) queryBus(store backend) queries.Bus {
	factory := store.factory
	bus := queries.NewInMemoryBus()

	queries.RegisterHandler[bookingapp.GetBookingQuery, dto.Booking](bus, bookingapp.GetBookingQuery{}.Key(), &bookingapp.GetBookingHandler{
		UoWFactory: factory,
		Sequence:   store.sequence,
		Logger:     a.logger,
	})
	queries.RegisterHandler[bookingapp.ListDriverBookingsQuery, dto.BookingCollection](bus, bookingapp.ListDriverBookingsQuery{}.Key(), &bookingapp.ListDriverBookingsHandler{
		UoWFactory: factory,
		Sequence:   store.sequence,
		Logger:     a.logger,
	})
	queries.RegisterHandler[bookingapp.ListHostBookingsQuery, dto.BookingCollection](bus, bookingapp.ListHostBookingsQuery{}.Key(), &bookingapp.ListHostBookingsHandler{
		UoWFactory: factory,
		Sequence:   store.sequence,
		Logger:     a.logger,
	})
	queries.RegisterHandler[bookingapp.AvailableVehiclesQuery, dto.SwitchCandidateCollection](bus, bookingapp.AvailableVehiclesQuery{}.Key(),
		&bookingapp.AvailableVehiclesHandler{UoWFactory: factory})
	queries.RegisterHandler[bookingapp.ListInsurancePlansQuery, dto.InsurancePlanCollection](bus, bookingapp.ListInsurancePlansQuery{}.Key(),
		&bookingapp.ListInsurancePlansHandler{Currency: a.cfg.Currency})
	queries.RegisterHandler[vehicleapp.SearchVehiclesQuery, dto.VehicleCollection](bus, vehicleapp.SearchVehiclesQuery{}.Key(),
		&vehicleapp.SearchVehiclesHandler{UoWFactory: factory, Currency: a.cfg.Currency})
	queries.RegisterHandler[vehicleapp.GetVehicleQuery, dto.Vehicle](bus, vehicleapp.GetVehicleQuery{}.Key(),
		&vehicleapp.GetVehicleHandler{UoWFactory: factory})
	queries.RegisterHandler[vehicleapp.ListHostVehiclesQuery, dto.VehicleCollection](bus, vehicleapp.ListHostVehiclesQuery{}.Key(),
		&vehicleapp.ListHostVehiclesHandler{UoWFactory: factory})
	queries.RegisterHandler[reviewsapp.ListVehicleReviewsQuery, dto.ReviewCollection](bus, reviewsapp.ListVehicleReviewsQuery{}.Key(),
		&reviewsapp.ListVehicleReviewsHandler{UoWFactory: factory})
	queries.RegisterHandler[messagesapp.ListMessagesQuery, dto.MessageCollection](bus, messagesapp.ListMessagesQuery{}.Key(),
		&messagesapp.ListMessagesHandler{UoWFactory: factory})

	return middleware.ChainQueries(
		bus,
		middleware.ObserveQueries(a.logger, a.metrics),
		middleware.QueryValidation(validation.New()),
		middleware.QueryAuthorization(middleware.RequireActor{}),
	)
}

func (a *application) httpHandlers() ginserver.Handlers {
	return ginserver.Handlers{
		Auth:           ginserver.AuthHandler{Service: a.auth, Logger: a.logger},
		Booking:        ginserver.BookingHandler{Commands: a.commands, Queries: a.queries, Logger: a.logger},
		Payment:        ginserver.PaymentHandler{Commands: a.commands, Logger: a.logger},
		Vehicle:        ginserver.VehicleHandler{Commands: a.commands, Queries: a.queries, Logger: a.logger},
		Social:         ginserver.SocialHandler{Commands: a.commands, Queries: a.queries, Logger: a.logger},
		AuthMiddleware: ginserver.AuthMiddleware{Service: a.auth, Logger: a.logger}.Handle,
		Metrics:        a.metrics.Handler(),
	}
}

func (a *application) sendReminders(ctx context.Context) error {
	res, err := commands.Dispatch[bookingapp.SendReturnRemindersCommand, bookingapp.RemindersResult](ctx, a.commands, bookingapp.SendReturnRemindersCommand{
		Window: a.cfg.ReminderWindow,
	})
	if err != nil {
		return err
	}
	a.logger.Info("return reminders sent", "count", res.Sent)
	return nil
}

// drainOutbox publishes pending records once; used by one-shot commands that exit
// before the background worker would run.
func (a *application) drainOutbox(ctx context.Context) error {
	if a.worker == nil {
		return nil
	}
	n, err := a.worker.Drain(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("outbox drained", "published", n)
	return nil
}

func (a *application) close() {
	ctx := context.Background()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown cleanup failed", "error", err)
	}
}
