// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	donorsfeature "github.com/bloodbridge/bloodbridge/internal/app/features/donors"
	healthfeature "github.com/bloodbridge/bloodbridge/internal/app/features/health"
	notificationsfeature "github.com/bloodbridge/bloodbridge/internal/app/features/notifications"
	requestsfeature "github.com/bloodbridge/bloodbridge/internal/app/features/requests"
	donorstore "github.com/bloodbridge/bloodbridge/internal/app/store/donors"
	notificationstore "github.com/bloodbridge/bloodbridge/internal/app/store/notifications"
	quotastore "github.com/bloodbridge/bloodbridge/internal/app/store/quota"
	requeststore "github.com/bloodbridge/bloodbridge/internal/app/store/requests"
	userstore "github.com/bloodbridge/bloodbridge/internal/app/store/users"
	"github.com/bloodbridge/bloodbridge/internal/app/system/dispatch"
	"github.com/bloodbridge/bloodbridge/internal/app/system/mailer"
	"github.com/bloodbridge/bloodbridge/internal/app/system/match"
	"github.com/bloodbridge/bloodbridge/internal/app/system/realtime"
	"github.com/bloodbridge/bloodbridge/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Long-lived components started in BuildHandler and torn down in Shutdown.
var (
	dispatcher   *dispatch.Dispatcher
	sweeper      *workers.ExpirySweeper
	redisChannel *realtime.RedisPublisher
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. BloodBridge wires the stores over the
// shared Mongo database, starts the notification dispatcher and the
// emergency expiry sweeper, and mounts the JSON feature routers.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	requests := requeststore.New(db)
	donors := donorstore.New(db)
	quota := quotastore.New(db)
	notes := notificationstore.New(db)
	users := userstore.New(db)

	// Real-time channel is optional; a blank redis_url returns nil and the
	// dispatcher simply skips the push channel.
	rt, err := realtime.NewRedisPublisher(appCfg.RedisURL, logger)
	if err != nil {
		logger.Error("redis connect failed", zap.Error(err))
		return nil, err
	}
	redisChannel = rt

	smtp := mailer.New(mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
	}, logger)

	var pub realtime.Publisher
	if rt != nil {
		pub = rt
	}
	dispatcher = dispatch.New(smtp, pub, notes, logger,
		dispatch.WithWorkers(appCfg.DispatchWorkers),
		dispatch.WithQueueSize(appCfg.DispatchQueueSize))
	dispatcher.Start()

	loc, err := time.LoadLocation(appCfg.QuotaTimeZone)
	if err != nil {
		// ValidateConfig already vetted the name; stay safe anyway.
		loc = time.Local
	}
	engine := match.New(requests, donors, quota, users, dispatcher, loc, logger)

	sweeper = workers.NewExpirySweeper(requests, logger, appCfg.SweepInterval)
	sweeper.Start()

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, rt, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	requestsHandler := requestsfeature.NewHandler(engine, requests, logger)
	r.Mount("/requests", requestsfeature.Routes(requestsHandler))

	donorsHandler := donorsfeature.NewHandler(engine, logger)
	r.Mount("/donors", donorsfeature.Routes(donorsHandler))

	notificationsHandler := notificationsfeature.NewHandler(notes, logger)
	r.Mount("/notifications", notificationsfeature.Routes(notificationsHandler))

	return r, nil
}
