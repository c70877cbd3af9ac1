package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/querylab/analyst"
	"github.com/querylab/analyst/conf"
	"github.com/querylab/analyst/engine"
	"github.com/querylab/analyst/events"
	"github.com/querylab/analyst/gemini"
	"github.com/querylab/analyst/persistence"
	"github.com/querylab/analyst/registry"
	"github.com/querylab/analyst/sweeper"

	transHTTP "github.com/querylab/analyst/transport/http"
	transPubSub "github.com/querylab/analyst/transport/pubsub"
)

var (
	Version   string = "0.0.0"
	BuildTime string
	GitCommit string
)

var versionCmd = &cli.Command{
	Name:    "version",
	Aliases: []string{"ver", "v"},
	Usage:   "Show version",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "all",
			Aliases: []string{"a"},
			Usage:   "Show all information (include: Version, BuildTime, GitCommit)",
			Value:   false,
		},
	},
	Action: func(ctx *cli.Context) error {
		if !ctx.Bool("all") {
			fmt.Println(ctx.App.Version)
		} else {
			cli.ShowVersion(ctx)
		}
		return nil
	},
}

var genkeyCmd = &cli.Command{
	Name:  "genkey",
	Usage: "Generate a new ed25519 key pair",
	Action: func(ctx *cli.Context) error {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return fmt.Errorf("failed to generate key pair: %w", err)
		}

		basedPriv := base64.StdEncoding.EncodeToString(priv)
		basedPub := base64.StdEncoding.EncodeToString(pub)

		fmt.Printf("Public Key: %s\n", basedPub)
		fmt.Printf("Private Key: %s\n", basedPriv)

		return nil
	},
}

var tokenCmd = &cli.Command{
	Name:  "token",
	Usage: "Mint a signed token for the task management API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "subject",
			Aliases: []string{"s"},
			Usage:   "Token subject",
			Value:   "admin",
		},
		&cli.StringFlag{
			Name:    "role",
			Aliases: []string{"r"},
			Usage:   "Role claim carried by the token",
			Value:   "admin",
		},
		&cli.DurationFlag{
			Name:  "ttl",
			Usage: "Token lifetime",
			Value: 24 * time.Hour,
		},
	},
	Action: func(ctx *cli.Context) error {
		if err := conf.LoadEnv(ctx); err != nil {
			return err
		}

		cfg, err := conf.LoadConfig()
		if err != nil {
			return err
		}

		if !cfg.JWT.Enabled() {
			return errors.New("jwt is not configured")
		}

		now := time.Now()
		claims := transHTTP.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    cfg.BaseURL,
				Subject:   ctx.String("subject"),
				Audience:  cfg.JWT.Audiences,
				ExpiresAt: jwt.NewNumericDate(now.Add(ctx.Duration("ttl"))),
				IssuedAt:  jwt.NewNumericDate(now),
				ID:        ulid.Make().String(),
			},
			Roles: []string{ctx.String("role")},
		}

		token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)

		signed, err := token.SignedString(cfg.JWT.Privkey)
		if err != nil {
			return err
		}

		fmt.Println(signed)
		return nil
	},
}

func main() {
	godotenv.Load()

	cli.VersionPrinter = func(cli *cli.Context) {
		fmt.Println("Version: " + cli.App.Version)
		fmt.Println("BuildTime: " + BuildTime)
		fmt.Println("GitCommit: " + GitCommit)
	}

	app := &cli.App{
		Name:     "analyst",
		Usage:    "LLM-driven data analysis over uploaded files",
		Version:  Version,
		Commands: []*cli.Command{versionCmd, genkeyCmd, tokenCmd},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Usage:   "Specifies the working directory",
				EnvVars: []string{"ANALYST_PATH"},
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Specifies the HTTP service port",
				Value:   8000,
				EnvVars: []string{"ANALYST_HTTP_PORT"},
			},
			&cli.StringFlag{
				Name:    "nats",
				Usage:   "Overrides the event bus URL",
				EnvVars: []string{"NATS_URL"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}

	time.Sleep(3000 * time.Millisecond)
}

func run(cli *cli.Context) error {
	err := conf.LoadEnv(cli)
	if err != nil {
		return err
	}

	cfg, err := conf.LoadConfig()
	if err != nil {
		return err
	}
	conf.ReplaceGlobals(cfg)

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)

	if err := os.MkdirAll(cfg.Workspace.Root, 0755); err != nil {
		return err
	}

	// Add Persistence
	repo, err := persistence.NewTaskRepository(cfg.Persistence)
	if err != nil {
		log.Error(err.Error(),
			zap.String("infra", "persistence"),
			zap.String("driver", cfg.Persistence.Driver.String()),
		)
		return err
	}
	defer repo.Close()

	// Add Service and Middlewares
	if cfg.Gemini.APIKey == "" {
		log.Warn("gemini api key is empty, code generation will fail",
			zap.String("infra", "llm"),
		)
	}

	llm := gemini.NewService(cfg.Gemini)
	runner := engine.NewPythonRunner(cfg.Executor)

	fieldKeys := []string{"method", "error"}
	requestCount := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "service",
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, fieldKeys)
	requestLatency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: "analyst",
		Subsystem: "service",
		Name:      "request_latency_seconds",
		Help:      "Total duration of requests in seconds.",
	}, fieldKeys)

	svc := analyst.NewService(repo, llm, runner)
	svc = analyst.LoggingMiddleware(log)(svc)
	svc = analyst.InstrumentingMiddleware(requestCount, requestLatency)(svc)

	// Add Endpoints
	endpoints := analyst.EndpointSet{
		Analyze:    analyst.AnalyzeEndpoint(svc),
		Task:       analyst.TaskEndpoint(svc),
		Tasks:      analyst.TasksEndpoint(svc),
		TaskLog:    analyst.TaskLogEndpoint(svc),
		DeleteTask: analyst.DeleteTaskEndpoint(svc),
	}

	// Add PubSub Transport and Event Publishing
	if natsURL := cli.String("nats"); natsURL != "" {
		cfg.EventBus.URL = natsURL
	}

	if cfg.EventBus.URL != "" {
		log := log.With(
			zap.String("infra", "pubsub"),
			zap.String("provider", cfg.EventBus.Provider.String()),
		)

		publisher, err := transPubSub.NewTaskPublisher(cfg.EventBus, log)
		if err != nil {
			log.Error(err.Error())
			return err
		}
		defer publisher.Close()

		events.ReplaceGlobals(publisher)

		log.Info("connected", zap.String("url", cfg.EventBus.URL))
	}

	// Add HTTP Transport
	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))
	r.Use(transHTTP.CORS())
	r.Use(transHTTP.RateLimit(cfg.RateLimit))

	started := time.Now()

	// GET /
	r.GET("/", transHTTP.FrontendHandler)

	// POST /api
	r.POST("/api", transHTTP.AnalyzeHandler(endpoints.Analyze))

	// GET /healthz
	r.GET("/healthz", transHTTP.HealthHandler(started))

	// GET /metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tasks := r.Group("/api/tasks")
	if cfg.JWT.Enabled() {
		audience := cfg.Name
		if len(cfg.JWT.Audiences) > 0 {
			audience = cfg.JWT.Audiences[0]
		}

		transHTTP.Init(
			cfg.BaseURL,     // issuer
			audience,        // audience
			cfg.JWT.Privkey, // ed25519 private key
		)

		// GET /.well-known/jwks.json
		r.GET("/.well-known/jwks.json", transHTTP.JWKHandler)

		tasks.Use(transHTTP.Authorize("admin"))
	}
	{
		// GET /api/tasks
		tasks.GET("", transHTTP.TasksHandler(endpoints.Tasks))

		// GET /api/tasks/:task
		tasks.GET("/:task", transHTTP.TaskHandler(endpoints.Task))

		// GET /api/tasks/:task/log
		tasks.GET("/:task/log", transHTTP.TaskLogHandler(endpoints.TaskLog))

		// DELETE /api/tasks/:task
		tasks.DELETE("/:task", transHTTP.DeleteTaskHandler(endpoints.DeleteTask))
	}

	// Add Workers
	if cfg.Sweeper.Schedule != "" {
		s := sweeper.New(cfg.Workspace.Root, cfg.Sweeper.TTL, log)
		if err := s.Start(cfg.Sweeper.Schedule); err != nil {
			return err
		}
		defer s.Stop()
	}

	// Add Service Registry
	if cfg.Registry.Consul.Address != "" {
		deregister, err := registry.Register(cfg.Registry, cfg.Name, cfg.BaseURL, conf.Port)
		if err != nil {
			log.Error(err.Error(), zap.String("infra", "registry"))
			return err
		}
		defer deregister()
	}

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(conf.Port),
		Handler: r,
	}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err.Error(), zap.String("infra", "http"))
		}
	}()

	log.Info("service started",
		zap.String("addr", srv.Addr),
		zap.String("version", Version),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	log.Info("shutdown", zap.String("signal", sign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}
