package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DavidGamba/go-getoptions"
	"github.com/cyverse-de/configurate"
	"github.com/cyverse-de/go-mod/otelutils"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/db"
	"github.com/libraryhq/notifications/directory"
	"github.com/libraryhq/notifications/fanout"
	"github.com/libraryhq/notifications/handlers"
	"github.com/libraryhq/notifications/handlerset"
	"github.com/libraryhq/notifications/model"
)

const serviceName = "notifications"

var log = logrus.WithFields(logrus.Fields{"service": serviceName})

// commandLineOptionValues represents the values of the command-line options that were passed on the command line when
// this service was invoked.
type commandLineOptionValues struct {
	Config string
	Queue  string
}

func parseCommandLine() *commandLineOptionValues {
	optionValues := &commandLineOptionValues{}
	opt := getoptions.New()

	// Default option values.
	defaultConfigPath := "/etc/libraryhq/notifications.yml"
	defaultQueueName := "notifications.dispatch"

	// Define the command-line options.
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&optionValues.Config, "config", defaultConfigPath,
		opt.Alias("c"),
		opt.Description("the path to the configuration file"))
	opt.StringVar(&optionValues.Queue, "queue", defaultQueueName,
		opt.Alias("q"),
		opt.Description("the name of the AMQP queue to consume dispatch requests from"))

	// Parse the command line, handling requests for help and usage errors.
	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprintf(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		fmt.Fprintf(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}

	return optionValues
}

// dispatchCategories lists the message categories routed to the dispatch
// handler.
var dispatchCategories = []model.NotificationType{
	model.TypeSystem,
	model.TypeLoan,
	model.TypeBook,
	model.TypeReview,
	model.TypeAnnouncement,
	model.TypeMaintenance,
	model.TypeCustom,
}

func main() {
	// Parse the command-line.
	optionValues := parseCommandLine()

	// Initialize logging.
	logrus.SetFormatter(&logrus.JSONFormatter{})

	// Initialize tracing.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	otelShutdown := otelutils.TracerProviderFromEnv(ctx, serviceName, func(e error) { log.Fatal(e) })
	defer otelShutdown()

	// Read in the configuration file.
	cfg, err := configurate.InitDefaults(optionValues.Config, configurate.JobServicesDefaults)
	if err != nil {
		log.Fatal(err)
	}

	// Retrieve the AMQP settings.
	amqpSettings := &common.AMQPSettings{
		URI:          cfg.GetString("amqp.uri"),
		ExchangeName: cfg.GetString("amqp.exchange.name"),
		ExchangeType: cfg.GetString("amqp.exchange.type"),
	}

	// Establish the database connection.
	database, err := db.InitDatabase("postgres", cfg.GetString("db.uri"))
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()
	dbClient := db.NewClient(database)

	// Create the message handler set. Its AMQP client doubles as the outbound
	// messaging client for the fan-out engine, so the handlers are registered
	// after the engine is built.
	handlerFor := map[string]handlers.MessageHandler{}
	handlerSet, err := handlerset.New(amqpSettings, handlerFor)
	if err != nil {
		log.Fatal(err)
	}
	defer handlerSet.Close()

	// Create the collaborating-service client and the fan-out engine. The rest
	// of the operation surface is exposed by the handlers package and wired up
	// by the API gateway process; this process only consumes dispatch requests.
	directoryClient := directory.NewClient(cfg.GetString("directory.base"))
	engine := fanout.New(dbClient, handlerSet.Client(), directoryClient)

	// Register the inbound dispatch handler for every message category.
	dispatchHandler := handlers.NewDispatch(engine)
	for _, category := range dispatchCategories {
		handlerFor[string(category)] = dispatchHandler
	}

	// Consume dispatch requests until the connection closes or a shutdown
	// signal arrives.
	go func() {
		handlerSet.Listen(amqpSettings, optionValues.Queue, "notifications.dispatch.*")
	}()
	log.Infof("listening for dispatch requests on queue %s", optionValues.Queue)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Infof("received signal %s; shutting down", sig)
}
