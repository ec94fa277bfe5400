package main

import (
	"context"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/haystack-go"
	"github.com/denysvitali/haystack-go/server"
	"github.com/denysvitali/haystack-go/store"
)

var args struct {
	AnisetteURL    string        `arg:"--anisette-url,-A,env:ANISETTE_URL" default:"http://localhost:6969" help:"Anisette URL"`
	AuthFile       string        `arg:"--auth-file,env:AUTH_FILE" default:"auth.json" help:"File holding dsid and searchPartyToken"`
	AccessoriesDir string        `arg:"--accessories-dir,env:ACCESSORIES_DIR" default:"./accessories/" help:"Directory with accessory files"`
	UpstreamURL    string        `arg:"--upstream-url,env:UPSTREAM_URL" help:"Report fetch endpoint (defaults to the Apple endpoint)"`
	ListenAddr     string        `arg:"--listen-addr,-l,env:LISTEN_ADDR" default:"127.0.0.1:8544" help:"Listen address"`
	Dsn            string        `arg:"--dsn,env:DSN" help:"PostgreSQL DSN, keeps history in memory when empty"`
	FetchDeadline  time.Duration `arg:"--fetch-deadline" default:"20s" help:"Hard deadline of a single upstream fetch"`
	RefreshWindow  time.Duration `arg:"--refresh-window" default:"12h" help:"Window queried by refreshes that do not specify one"`
	Retries        int           `arg:"--retries" default:"3" help:"Attempts per refresh on timeouts and upstream failures"`
	KeyCacheSize   int           `arg:"--key-cache-size" default:"16384" help:"Derived key pairs kept in memory, 0 disables the cache"`
	LogLevel       string        `arg:"--log-level" default:"info" help:"Log level"`
}
var logger = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	setLogLevel(args.LogLevel)

	auth, err := haystack.GetAuth(args.AuthFile)
	if err != nil {
		// The relay and refreshes answer 401 until a token is configured.
		logger.Warnf("failed to get auth: %v", err)
	}
	provider := haystack.NewAnisetteProvider(auth, args.AnisetteURL)

	accessories, err := haystack.LoadAccessories(args.AccessoriesDir)
	if err != nil {
		logger.Fatalf("failed to load accessories: %v", err)
	}

	var st store.Store = store.NewMemory()
	if args.Dsn != "" {
		st, err = store.OpenPostgres(args.Dsn)
		if err != nil {
			logger.Fatalf("failed to open store: %v", err)
		}
	}
	ctx := context.Background()
	for _, a := range accessories {
		if err := st.Register(ctx, a); err != nil {
			logger.Fatalf("failed to register accessory: %v", err)
		}
	}

	var clientOpts []haystack.ClientOption
	if args.UpstreamURL != "" {
		clientOpts = append(clientOpts, haystack.WithEndpoint(args.UpstreamURL))
	}
	client := haystack.NewClient(clientOpts...)

	locatorOpts := []haystack.LocatorOption{}
	if args.KeyCacheSize > 0 {
		cache, err := haystack.NewKeyCache(args.KeyCacheSize)
		if err != nil {
			logger.Fatalf("failed to create key cache: %v", err)
		}
		locatorOpts = append(locatorOpts, haystack.WithKeyCache(cache))
	}
	locator := haystack.NewLocator(client, provider, st, locatorOpts...)

	s := server.New(server.Config{
		FetchDeadline: args.FetchDeadline,
		RefreshWindow: args.RefreshWindow,
		Retries:       args.Retries,
	}, locator, client, provider, accessories)
	logger.Infof("Serving %d accessories", len(accessories))
	if err := s.Listen(args.ListenAddr); err != nil {
		logger.Fatalf("start server: %v", err)
	}
}

func setLogLevel(level string) {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Fatalf("failed to parse log level: %v", err)
	}
	logger.SetLevel(l)
}
