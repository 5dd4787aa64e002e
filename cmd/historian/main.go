// cmd/historian is the asynchronous historian service: it pops session records
// from the Redis history queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/showguessr/server/internal/cache"
	"github.com/showguessr/server/internal/config"
	"github.com/showguessr/server/internal/database"
	"github.com/showguessr/server/internal/historian"
	"github.com/spf13/cobra"
)

type options struct {
	redisAddr string
	redisDB   int
	queue     string
	logLevel  string
	logJSON   bool
	historian.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &options{}
	cobra.CheckErr(newCmd(opts).ExecuteContext(ctx))
}

func newCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "showguessr-historian",
		Short:         "Persists showguessr game history from Redis into PostgreSQL.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o)
		},
	}

	def := historian.DefaultConfig()
	fs := cmd.Flags()
	fs.StringVar(&o.redisAddr, "redis-addr", "localhost:6379", "Redis address (env: HISTORIAN_REDIS_ADDR)")
	fs.IntVar(&o.redisDB, "redis-db", 0, "Redis database index (env: HISTORIAN_REDIS_DB)")
	fs.StringVar(&o.queue, "queue-name", cache.DefaultQueueName, "Redis list to consume (env: HISTORIAN_QUEUE_NAME)")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level (env: HISTORIAN_LOG_LEVEL)")
	fs.BoolVar(&o.logJSON, "log-json", false, "log as JSON (env: HISTORIAN_LOG_JSON)")
	fs.IntVar(&o.BatchSize, "batch-size", def.BatchSize, "records per database transaction (env: HISTORIAN_BATCH_SIZE)")
	fs.DurationVar(&o.FlushInterval, "flush-interval", def.FlushInterval, "maximum time a partial batch waits (env: HISTORIAN_FLUSH_INTERVAL)")
	fs.DurationVar(&o.PopTimeout, "pop-timeout", def.PopTimeout, "BLPOP wait (env: HISTORIAN_POP_TIMEOUT)")
	fs.DurationVar(&o.Inactivity, "inactivity", def.Inactivity, "idle time before a game is marked abandoned (env: HISTORIAN_INACTIVITY)")
	fs.DurationVar(&o.SweepInterval, "sweep-interval", def.SweepInterval, "how often idle games are checked (env: HISTORIAN_SWEEP_INTERVAL)")
	config.BindEnv(fs, "HISTORIAN")

	return cmd
}

func run(ctx context.Context, o *options) error {
	if err := o.Config.Validate(); err != nil {
		return err
	}
	logger := config.NewLogger(o.logLevel, o.logJSON)

	pool, err := database.Connect(ctx, database.DSNFromEnv())
	if err != nil {
		return err
	}
	defer pool.Close()

	store := database.NewHistoryStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	queue := cache.NewHistoryQueue(o.redisAddr, o.redisDB, o.queue)
	defer queue.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = queue.Ping(pingCtx)
	cancel()
	if err != nil {
		return err
	}

	logger.WithField("queue", queue.Queue()).Info("historian consuming")
	return historian.NewService(queue, store, logger, o.Config).Run(ctx)
}
