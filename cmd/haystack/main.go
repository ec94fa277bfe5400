package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/haystack-go"
	"github.com/denysvitali/haystack-go/model"
	"github.com/denysvitali/haystack-go/store"
)

var logger = logrus.StandardLogger()

type FetchCmd struct {
	AnisetteURL    string        `arg:"--anisette-url,-A,env:ANISETTE_URL" default:"http://localhost:6969" help:"Anisette URL"`
	AuthFile       string        `arg:"--auth-file,env:AUTH_FILE" default:"auth.json" help:"File holding dsid and searchPartyToken"`
	AccessoriesDir string        `arg:"--accessories-dir,env:ACCESSORIES_DIR" default:"." help:"Directory with accessory files"`
	UpstreamURL    string        `arg:"--upstream-url,env:UPSTREAM_URL" help:"Report fetch endpoint"`
	Hours          int           `arg:"--hours" default:"2" help:"Hours of history to fetch"`
	Deadline       time.Duration `arg:"--deadline" default:"20s" help:"Fetch deadline"`
	Retries        int           `arg:"--retries" default:"1" help:"Attempts on timeouts and upstream failures"`
}

type KeysCmd struct {
	Accessory string    `arg:"positional,required" help:"Accessory file"`
	At        time.Time `arg:"--at" help:"Time of the first key (RFC3339, defaults to now)"`
	Count     int       `arg:"--count,-n" default:"1" help:"Number of consecutive intervals"`
	Format    string    `arg:"--format,-f" default:"base64" help:"base64, bytes or escaped"`
}

type GenerateCmd struct {
	Name string `arg:"positional,required" help:"Accessory name"`
	Out  string `arg:"--out,-o" default:"." help:"Output directory"`
}

type SimulateCmd struct {
	Accessory  string    `arg:"positional,required" help:"Accessory file"`
	Lat        float64   `arg:"--lat,required"`
	Lng        float64   `arg:"--lng,required"`
	At         time.Time `arg:"--at" help:"Time the accessory was seen (RFC3339, defaults to now)"`
	Accuracy   int       `arg:"--accuracy" default:"10"`
	Confidence int       `arg:"--confidence" default:"2"`
}

var args struct {
	Fetch    *FetchCmd    `arg:"subcommand:fetch" help:"fetch and decrypt reports"`
	Keys     *KeysCmd     `arg:"subcommand:keys" help:"print advertisement keys"`
	Generate *GenerateCmd `arg:"subcommand:generate" help:"create a new accessory"`
	Simulate *SimulateCmd `arg:"subcommand:simulate" help:"encrypt a report the way a finder would"`
	LogLevel string       `arg:"--log-level" default:"info" help:"Log level"`
}

func main() {
	p := arg.MustParse(&args)
	l, err := logrus.ParseLevel(args.LogLevel)
	if err != nil {
		logger.Fatalf("failed to parse log level: %v", err)
	}
	logger.SetLevel(l)

	switch {
	case args.Fetch != nil:
		err = fetch(args.Fetch)
	case args.Keys != nil:
		err = keys(args.Keys)
	case args.Generate != nil:
		err = generate(args.Generate)
	case args.Simulate != nil:
		err = simulate(args.Simulate)
	default:
		p.Fail("missing subcommand")
	}
	if err != nil {
		logger.Fatal(err)
	}
}

func fetch(cmd *FetchCmd) error {
	auth, err := haystack.GetAuth(cmd.AuthFile)
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}
	accessories, err := haystack.LoadAccessories(cmd.AccessoriesDir)
	if err != nil {
		return fmt.Errorf("failed to load accessories: %w", err)
	}

	var opts []haystack.ClientOption
	if cmd.UpstreamURL != "" {
		opts = append(opts, haystack.WithEndpoint(cmd.UpstreamURL))
	}
	st := store.NewMemory()
	locator := haystack.NewLocator(
		haystack.NewClient(opts...),
		haystack.NewAnisetteProvider(auth, cmd.AnisetteURL),
		st,
	)

	ctx := context.Background()
	w := model.LastWindow(time.Now(), time.Duration(cmd.Hours)*time.Hour)
	summary, err := locator.RefreshWithRetry(ctx, accessories, w, cmd.Deadline, cmd.Retries)
	if err != nil {
		return fmt.Errorf("failed to refresh locations: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	for _, a := range accessories {
		history, err := locator.History(ctx, a.ID, w)
		if err != nil {
			return err
		}
		for _, f := range history {
			if err := enc.Encode(map[string]any{"accessory": a.ID, "location": f}); err != nil {
				return err
			}
		}
	}
	return enc.Encode(summary)
}

func readAccessory(file string) (model.Accessory, error) {
	f, err := os.Open(file)
	if err != nil {
		return model.Accessory{}, err
	}
	defer f.Close()
	return haystack.ReadAccessory(f)
}

func keys(cmd *KeysCmd) error {
	a, err := readAccessory(cmd.Accessory)
	if err != nil {
		return err
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now()
	}
	first, ok := haystack.DefaultSchedule.IntervalAt(at)
	if !ok {
		return fmt.Errorf("%s is before the schedule epoch", at)
	}
	for i := 0; i < cmd.Count; i++ {
		interval := first + model.Interval(i)
		kp, err := haystack.Derive(a.MasterSecret, interval)
		if err != nil {
			return err
		}
		h, err := haystack.Hash(kp.PublicKey)
		if err != nil {
			return err
		}
		key, err := haystack.FormatKey(kp.AdvertisementKey(), haystack.KeyFormat(cmd.Format))
		if err != nil {
			return err
		}
		fmt.Printf("%d\t%s\t%s\t%s\n",
			interval,
			haystack.DefaultSchedule.IntervalStart(interval).Format(time.RFC3339),
			h,
			key,
		)
	}
	return nil
}

func generate(cmd *GenerateCmd) error {
	a, err := haystack.NewAccessory(cmd.Name)
	if err != nil {
		return err
	}
	file := path.Join(cmd.Out, a.ID+".yaml")
	f, err := os.OpenFile(file, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := haystack.WriteAccessory(f, a); err != nil {
		return err
	}
	logger.Infof("wrote %s", file)
	return nil
}

func simulate(cmd *SimulateCmd) error {
	a, err := readAccessory(cmd.Accessory)
	if err != nil {
		return err
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now()
	}
	interval, ok := haystack.DefaultSchedule.IntervalAt(at)
	if !ok {
		return fmt.Errorf("%s is before the schedule epoch", at)
	}
	kp, err := haystack.Derive(a.MasterSecret, interval)
	if err != nil {
		return err
	}
	er, err := haystack.Seal(rand.Reader, kp.PublicKey, model.LocationFix{
		Timestamp:   at,
		PublishedAt: time.Now(),
		Latitude:    cmd.Lat,
		Longitude:   cmd.Lng,
		Accuracy:    cmd.Accuracy,
		Confidence:  cmd.Confidence,
	})
	if err != nil {
		return err
	}
	logger.Debugf("sealed report for %s, ephemeral key %s", haystack.KeyID(er.Hash), base64.StdEncoding.EncodeToString(er.EphemeralKey))
	return json.NewEncoder(os.Stdout).Encode(haystack.FindResult{Results: []haystack.Report{haystack.EncodeReport(er)}})
}
