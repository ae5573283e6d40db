package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"

	"github.com/caseflow/relay/core"
)

type App struct {
	config  *Config
	db      *core.SQLiteDB
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  chi.Router
	sweeper *cron.Cron

	exit chan int

	messageStore core.MessageStore
	relay        *core.MessageRelay
	presence     *core.PresenceTracker
	typing       *core.TypingTracker
	rooms        *core.RoomCoordinator

	// messaging and call signaling live on separate connection registries,
	// so a dropped call connection never disturbs chat delivery
	chatManager *core.ConnManager
	chatRouter  *core.EventRouter

	videoManager *core.ConnManager
	videoRouter  *core.EventRouter

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	var err error
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, "invalid config: %v\n", err)
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	sqliteOptions := &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	app.db, err = core.NewSQLiteDB(app.config.SQLite.File, app.config.SQLite.Migrations, sqliteOptions)
	if err != nil {
		failed(1, "failed to open database: %v\n", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		failed(1, "failed to migrate database: %v\n", err)
	}

	app.messageStore = core.NewSQLiteMessageStore(app.db.DB)
	app.relay = core.NewMessageRelay(app.messageStore)
	app.presence = core.NewPresenceTracker()
	app.rooms = core.NewRoomCoordinator(core.WithRoomTTL(app.config.Call.RoomTTL))

	app.typing = core.NewTypingTracker(func(senderID, recipientID string, typing bool) {
		event := UserStopTypingEvent
		if typing {
			event = UserTypingEvent
		}
		app.chatRouter.EmitTo(event,
			TypingNotification{SenderID: senderID, Timestamp: time.Now()}, recipientID)
	})

	secret := []byte(app.config.Auth.Secret)

	app.chatManager = core.NewConnManager(app.context, &app.wg, app.logger, secret)
	app.chatManager.OnUserConnected(app.onChatUserConnect)
	app.chatManager.OnConnectionOpened(app.onChatConnectionOpen)
	app.chatManager.OnUserDisconnected(app.onChatUserDisconnect)
	app.chatRouter = core.NewEventRouter(app.context, app.logger, app.chatManager)
	app.chatRouter.On(UserOnlineEvent, app.UserOnlineHandler)
	app.chatRouter.On(SendMessageEvent, app.SendMessageHandler)
	app.chatRouter.On(MarkMessageReadEvent, app.MarkMessageReadHandler)
	app.chatRouter.On(EditMessageEvent, app.EditMessageHandler)
	app.chatRouter.On(DeleteMessageEvent, app.DeleteMessageHandler)
	app.chatRouter.On(ClearConversationEvent, app.ClearConversationHandler)
	app.chatRouter.On(HistoryEvent, app.HistoryHandler)
	app.chatRouter.On(UserTypingEvent, app.UserTypingHandler)
	app.chatRouter.On(UserStopTypingEvent, app.UserStopTypingHandler)
	app.chatRouter.On(JoinApplicationEvent, app.JoinApplicationHandler)
	app.chatRouter.On(LeaveApplicationEvent, app.LeaveApplicationHandler)
	app.chatRouter.On(UpdateApplicationEvent, app.UpdateApplicationHandler)

	app.videoManager = core.NewConnManager(app.context, &app.wg, app.logger, secret)
	app.videoManager.OnUserDisconnected(app.onVideoUserDisconnect)
	app.videoRouter = core.NewEventRouter(app.context, app.logger, app.videoManager)
	app.videoRouter.On(core.EventJoinRoom, app.JoinRoomHandler)
	app.videoRouter.On(core.EventLeaveRoom, app.LeaveRoomHandler)
	app.videoRouter.On(core.EventOffer, app.OfferHandler)
	app.videoRouter.On(core.EventAnswer, app.AnswerHandler)
	app.videoRouter.On(core.EventICECandidate, app.ICECandidateHandler)
	app.videoRouter.On(core.EventCallFailed, app.CallFailedHandler)

	app.sweeper = cron.New()
	app.sweeper.AddFunc("@every 10m", func() {
		if n := app.rooms.SweepExpired(); n > 0 {
			app.logger.Info(fmt.Sprintf("swept %d expired rooms", n))
		}
	})

	app.router = chi.NewRouter()
	app.router.Use(middleware.RequestID)
	app.router.Use(middleware.Recoverer)
	app.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.Method(http.MethodGet, "/ws", app.chatManager)
	app.router.Method(http.MethodGet, "/ws/video", app.videoManager)
	app.router.Mount("/api", app.apiRoutes())

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

func (app *App) Start() {
	app.wg.Add(1)
	go app.chatRouter.Listen(&app.wg)
	app.wg.Add(1)
	go app.videoRouter.Listen(&app.wg)

	app.sweeper.Start()
	app.AddCleanupFunc(func(ctx context.Context) {
		<-app.sweeper.Stop().Done()
	})

	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range app.cleanupFuncs {
			wg.Add(1)
			go func(f func(context.Context)) {
				defer wg.Done()
				f(closeCtx)
			}(f)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.logger.Info(fmt.Sprintf("app running on: %s:%d",
		app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	if code != 0 {
		failed(code, "app exit with code: %d\n", code)
	} else {
		os.Exit(code)
	}
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
