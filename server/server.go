package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/denysvitali/haystack-go"
	"github.com/denysvitali/haystack-go/model"
	"github.com/denysvitali/haystack-go/server/responses"
)

var logger = logrus.StandardLogger().WithField("pkg", "server")

type Config struct {
	FetchDeadline time.Duration
	// RefreshWindow is queried when a refresh does not ask for a number of hours.
	RefreshWindow time.Duration
	// RelayWindow is the window used when relaying raw report requests.
	RelayWindow time.Duration
	Retries     int
}

func (c Config) withDefaults() Config {
	if c.FetchDeadline <= 0 {
		c.FetchDeadline = haystack.DefaultFetchDeadline
	}
	if c.RefreshWindow <= 0 {
		c.RefreshWindow = 12 * time.Hour
	}
	if c.RelayWindow <= 0 {
		c.RelayWindow = 7 * 24 * time.Hour
	}
	if c.Retries < 1 {
		c.Retries = 1
	}
	return c
}

type Server struct {
	e           *gin.Engine
	cfg         Config
	locator     *haystack.Locator
	relay       *haystack.Client
	auth        haystack.AuthProvider
	accessories map[string]model.Accessory
}

func New(cfg Config, locator *haystack.Locator, relay *haystack.Client, auth haystack.AuthProvider, accessories []model.Accessory) *Server {
	s := Server{
		e:           gin.New(),
		cfg:         cfg.withDefaults(),
		locator:     locator,
		relay:       relay,
		auth:        auth,
		accessories: map[string]model.Accessory{},
	}
	for _, a := range accessories {
		s.accessories[a.ID] = a
	}
	s.init()
	return &s
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Listen(addr ...string) error {
	logger.Infof("listening on %s", addr)
	return s.e.Run(addr...)
}

func (s *Server) init() {
	s.e.Use(gin.Recovery())
	s.e.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
	}))
	s.e.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	s.e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.e.POST("/getLocationReports", s.relayReports)

	v1 := s.e.Group("/api/v1")
	v1.GET("/accessories", s.getAccessories)
	v1.GET("/accessories/:accessoryId", s.getLastLocation)
	v1.GET("/accessories/:accessoryId/refresh", s.refreshLocation)
	v1.GET("/accessories/:accessoryId/history", s.getLocationHistory)
	v1.GET("/refresh", s.refreshAll)
}

func (s *Server) getAccessories(c *gin.Context) {
	ids := maps.Keys(s.accessories)
	res := make([]responses.Accessory, 0, len(ids))
	interval, _ := s.locator.Schedule().IntervalAt(time.Now())
	for _, id := range ids {
		a := s.accessories[id]
		r := responses.Accessory{
			ID:       a.ID,
			Name:     a.Name,
			Icon:     a.Icon,
			Color:    a.Color,
			Deployed: a.Deployed,
		}
		if kp, err := haystack.Derive(a.MasterSecret, interval); err == nil {
			h, _ := haystack.Hash(kp.PublicKey)
			r.AdvertisementKey = base64.StdEncoding.EncodeToString(kp.AdvertisementKey())
			r.AdvertisementHash = h.String()
		} else {
			logger.Warnf("unable to derive current key of %s: %v", id, err)
		}
		lastLocation, err := s.locator.Latest(c.Request.Context(), id)
		if err != nil {
			logger.Warnf("unable to get last location: %v", err)
		}
		r.LastLocation = lastLocation
		res = append(res, r)
	}

	sort.Sort(responses.ByAccessoryID(res))

	c.JSON(http.StatusOK, res)
}

func (s *Server) accessory(c *gin.Context) (model.Accessory, bool) {
	a, ok := s.accessories[c.Param("accessoryId")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "accessory not found"})
	}
	return a, ok
}

func (s *Server) getLastLocation(c *gin.Context) {
	a, ok := s.accessory(c)
	if !ok {
		return
	}
	location, err := s.locator.Latest(c.Request.Context(), a.ID)
	if err != nil {
		logger.Errorf("unable to get last location: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to get last location"})
		return
	}
	if location == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no location found"})
		return
	}
	c.JSON(http.StatusOK, location)
}

func (s *Server) getLocationHistory(c *gin.Context) {
	a, ok := s.accessory(c)
	if !ok {
		return
	}
	from, err := parseTime(c.Query("from"), s.locator.Schedule().Epoch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be an RFC3339 timestamp"})
		return
	}
	to, err := parseTime(c.Query("to"), time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be an RFC3339 timestamp"})
		return
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return
	}
	w := model.TimeWindow{Start: from, Duration: to.Sub(from)}
	locations, err := s.locator.History(c.Request.Context(), a.ID, w)
	if err != nil {
		logger.Errorf("unable to get location history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to get location history"})
		return
	}
	c.JSON(http.StatusOK, responses.History{
		AccessoryID: a.ID,
		Window:      model.DescribeDuration(w.Duration),
		Locations:   locations,
	})
}

func parseTime(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) window(c *gin.Context) (model.TimeWindow, bool) {
	amountHours := c.Query("amountHours")
	if amountHours == "" {
		return model.LastWindow(time.Now(), s.cfg.RefreshWindow), true
	}
	amountHoursInt, err := strconv.Atoi(amountHours)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amountHours must be an integer"})
		return model.TimeWindow{}, false
	}

	if amountHoursInt < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amountHours must be greater than 0"})
		return model.TimeWindow{}, false
	}
	return model.LastWindow(time.Now(), time.Duration(amountHoursInt)*time.Hour), true
}

func (s *Server) refreshLocation(c *gin.Context) {
	a, ok := s.accessory(c)
	if !ok {
		return
	}
	w, ok := s.window(c)
	if !ok {
		return
	}
	logger.Infof("Refreshing location for %q", a.ID)
	s.refresh(c, []model.Accessory{a}, w)
}

func (s *Server) refreshAll(c *gin.Context) {
	w, ok := s.window(c)
	if !ok {
		return
	}
	s.refresh(c, maps.Values(s.accessories), w)
}

func (s *Server) refresh(c *gin.Context, accessories []model.Accessory, w model.TimeWindow) {
	summary, err := s.locator.RefreshWithRetry(c.Request.Context(), accessories, w, s.cfg.FetchDeadline, s.cfg.Retries)
	if err != nil {
		logger.Errorf("unable to refresh locations: %v", err)
		c.JSON(statusForFetchError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"window":  model.DescribeDuration(w.Duration),
		"summary": summary,
	})
}

type getReportsBody struct {
	IDs []string `json:"ids"`
}

// relayReports forwards raw report requests to the upstream network.
func (s *Server) relayReports(c *gin.Context) {
	var body getReportsBody
	if err := c.ShouldBindJSON(&body); err != nil || len(body.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids must be a non-empty list"})
		return
	}
	for _, id := range body.IDs {
		if _, err := model.ParseAdvertisementHash(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	logger.Infof("Received %d report ids", len(body.IDs))

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.FetchDeadline)
	defer cancel()
	auth, err := s.auth.Context(ctx)
	if err != nil {
		logger.Warnf("unable to get auth context: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Search party token not available"})
		return
	}
	reports, err := s.relay.FetchRaw(ctx, body.IDs, model.LastWindow(time.Now(), s.cfg.RelayWindow), auth, s.cfg.FetchDeadline)
	if err != nil {
		logger.Errorf("unable to relay reports: %v", err)
		c.JSON(statusForFetchError(err), gin.H{"error": err.Error()})
		return
	}
	if reports == nil {
		reports = []haystack.Report{}
	}
	c.JSON(http.StatusOK, haystack.FindResult{Results: reports})
}

func statusForFetchError(err error) int {
	switch {
	case errors.Is(err, haystack.ErrAuthUnavailable):
		return http.StatusUnauthorized
	case errors.Is(err, haystack.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, haystack.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, haystack.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
