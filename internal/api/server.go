// Package api exposes live authoring of an engine over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/cbegin/stepseq"
	"github.com/cbegin/stepseq/internal/pattern"
	"github.com/cbegin/stepseq/internal/sequencer"
	"github.com/cbegin/stepseq/internal/session"
	"github.com/cbegin/stepseq/internal/synth"
	"github.com/cbegin/stepseq/internal/theory"
)

type Server struct {
	engine *stepseq.Engine
	log    *slog.Logger
}

func New(e *stepseq.Engine) *Server {
	return &Server{engine: e, log: e.Logger()}
}

// Router builds the gin handler tree.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests(), corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/tracks", s.listTracks)
		v1.GET("/tracks/:i", s.getTrack)
		v1.PUT("/tracks/:i/sequence", s.putSequence)
		v1.PUT("/tracks/:i/euclid", s.putEuclid)
		v1.PUT("/tracks/:i/expr", s.putExpr)
		v1.PUT("/tracks/:i/steps/:n", s.putStep)
		v1.PATCH("/tracks/:i/params", s.patchParams)
		v1.POST("/tracks/:i/start", s.startTrack)
		v1.POST("/tracks/:i/stop", s.stopTrack)
		v1.DELETE("/tracks/:i", s.clearTrack)
		v1.POST("/stop", s.stopAll)
		v1.GET("/theory", s.getTheory)
		v1.PUT("/theory", s.putTheory)
		v1.GET("/synth", s.getSynth)
		v1.PATCH("/synth", s.patchSynth)
		v1.GET("/euclid", euclidPreview)
		v1.GET("/session", s.getSession)
	}
	return r
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info("api listening", "addr", addr)
	return s.Router().Run(addr)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.Debug("api request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status())
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "stepseq"})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func trackIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("i"))
	if err != nil {
		fail(c, http.StatusBadRequest, errors.Errorf("bad track index %q", c.Param("i")))
		return 0, false
	}
	return i, true
}

func subdivision(text string) (float64, error) {
	if text == "" {
		return 0, nil
	}
	return theory.ParseSubdivision(text)
}

// TrackView is the JSON form of a track.
type TrackView struct {
	Index       int       `json:"index"`
	Kind        string    `json:"kind"`
	Running     bool      `json:"running"`
	Cursor      int       `json:"cursor"`
	Pattern     string    `json:"pattern"`
	Length      int       `json:"length"`
	Subdivision float64   `json:"subdivision"`
	Octave      []float64 `json:"octave,omitempty"`
	Sustain     []float64 `json:"sustain,omitempty"`
	Velocity    []float64 `json:"velocity,omitempty"`
	Lag         []float64 `json:"lag,omitempty"`
	Ornament    float64   `json:"ornament,omitempty"`
	Wildcard    string    `json:"wildcard"`
	Kit         string    `json:"kit,omitempty"`
}

func viewOf(st sequencer.TrackStatus) TrackView {
	v := TrackView{
		Index:       st.Index,
		Kind:        st.Kind.String(),
		Running:     st.Running,
		Cursor:      st.Cursor,
		Pattern:     st.Text,
		Length:      len(st.Steps),
		Subdivision: st.Subdivision,
		Octave:      st.Octave,
		Sustain:     st.Sustain,
		Velocity:    st.Velocity,
		Lag:         st.Lag,
		Ornament:    st.Ornament,
		Wildcard:    st.Wildcard.Mode.String(),
	}
	if st.Kind == sequencer.Percussive {
		v.Kit = st.Kit
	}
	return v
}

func (s *Server) listTracks(c *gin.Context) {
	tracks := s.engine.Tracks()
	out := make([]TrackView, len(tracks))
	for i, st := range tracks {
		out[i] = viewOf(st)
	}
	c.JSON(http.StatusOK, gin.H{"tracks": out})
}

func (s *Server) getTrack(c *gin.Context) {
	i, ok := trackIndex(c)
	if !ok {
		return
	}
	st, found := s.engine.Sequencer().Track(i)
	if !found {
		fail(c, http.StatusNotFound, errors.Errorf("no track %d", i))
		return
	}
	c.JSON(http.StatusOK, viewOf(st))
}

func (s *Server) respondTrack(c *gin.Context, i int) {
	st, _ := s.engine.Sequencer().Track(i)
	c.JSON(http.StatusOK, viewOf(st))
}

type sequenceRequest struct {
	Pattern     string    `json:"pattern"`
	Values      []float64 `json:"values"`
	Subdivision string    `json:"subdivision"`
}

// putSequence answers 400 on malformed notation; the track has already
// degraded to a rest by then.
func (s *Server) putSequence(c *gin.Context) {
	i, ok := trackIndex(c)
	if !ok {
		return
	}
	var req sequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	sub, err := subdivision(req.Subdivision)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if len(req.Values) > 0 {
		err = s.engine.SequenceValues(i, req.Values, sub)
	} else {
		err = s.engine.Sequence(i, req.Pattern, sub)
	}
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	s.respondTrack(c, i)
}

type euclidRequest struct {
	session.Euclid
	Subdivision string `json:"subdivision"`
}

func (s *Server) putEuclid(c *gin.Context) {
	i, ok := trackIndex(c)
	if !ok {
		return
	}
	var req euclidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	sub, err := subdivision(req.Subdivision)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.Euclid(i, req.Symbol, req.Hits, req.Steps, req.Rotation, sub); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	s.respondTrack(c, i)
}

type exprRequest struct {
	session.Expr
	Subdivision string `json:"subdivision"`
}

func (s *Server) putExpr(c *gin.Context) {
	i, ok := trackIndex(c)
	if !ok {
		return
	}
	var req exprRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	sub, err := subdivision(req.Subdivision)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.SequenceExpr(i, req.Template, req.Length, sub)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	warnings := make([]string, len(res.Warnings))
	for k, w := range res.Warnings {
		warnings[k] = w.Error()
	}
	st, _ := s.engine.Sequencer().Track(i)
	c.JSON(http.StatusOK, gin.H{"track": viewOf(st), "warnings": warnings})
}

func (s *Server) putStep(c *gin.Context) {
	i, ok := trackIndex(c)
	if !ok {
		return
	}
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		fail(c, http.StatusBadRequest, errors.Errorf("bad step index %q", c.Param("n")))
		return
	}
	var req struct {
		Step string `json:"step"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetStep(i, n, req.Step); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	s.respondTrack(c, i)
}

func (s *Server) patchParams(c *gin.Context) {
	i, ok := trackIndex(c)
	if !ok {
		return
	}
	var req session.Track
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	req.Index = i
	if err := req.ApplyParams(s.engine); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	s.respondTrack(c, i)
}

func (s *Server) startTrack(c *gin.Context) {
	if i, ok := trackIndex(c); ok {
		s.engine.Start(i)
		s.respondTrack(c, i)
	}
}

func (s *Server) stopTrack(c *gin.Context) {
	if i, ok := trackIndex(c); ok {
		s.engine.Stop(i)
		s.respondTrack(c, i)
	}
}

func (s *Server) clearTrack(c *gin.Context) {
	if i, ok := trackIndex(c); ok {
		s.engine.Clear(i)
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) stopAll(c *gin.Context) {
	s.engine.StopAll()
	c.Status(http.StatusNoContent)
}

// TheoryView is the JSON form of the theory context.
type TheoryView struct {
	Tempo        float64   `json:"tempo"`
	Root         string    `json:"root"`
	Octave       int       `json:"octave"`
	RootNote     int       `json:"root_note"`
	Scale        string    `json:"scale,omitempty"`
	ScaleIndices []int     `json:"scale_indices,omitempty"`
	Progression  []string  `json:"progression"`
	BarsPerChord float64   `json:"bars_per_chord"`
	BeatsPerBar  float64   `json:"beats_per_bar"`
	Temperament  string    `json:"temperament"`
	Cents        []float64 `json:"cents"`
	Beat         float64   `json:"beat"`
	Chord        string    `json:"chord,omitempty"`
}

func (s *Server) theoryView() TheoryView {
	snap := s.engine.Theory().Snapshot()
	temp := snap.Temperament()
	beat := s.engine.Sequencer().Beat()
	v := TheoryView{
		Tempo:        snap.Tempo(),
		Root:         theory.PitchClassName(snap.Root()),
		Octave:       snap.Octave(),
		RootNote:     snap.RootNote(),
		Scale:        snap.ScaleName(),
		ScaleIndices: snap.Scale(),
		Progression:  snap.ProgressionText(),
		BarsPerChord: snap.BarsPerChord(),
		BeatsPerBar:  snap.BeatsPerBar(),
		Temperament:  temp.Name,
		Cents:        temp.Cents,
		Beat:         beat,
	}
	if chord, ok := snap.ChordAt(beat); ok {
		v.Chord = chord.Text
	}
	return v
}

func (s *Server) getTheory(c *gin.Context) {
	c.JSON(http.StatusOK, s.theoryView())
}

// putTheory takes the theory subset of a session document. Fields left
// out keep their current value.
func (s *Server) putTheory(c *gin.Context) {
	var doc session.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := doc.ApplyTheory(s.engine.Theory()); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, s.theoryView())
}

type paramView struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Integer bool    `json:"integer,omitempty"`
}

func (s *Server) getSynth(c *gin.Context) {
	fm := s.engine.Synth()
	if fm == nil {
		fail(c, http.StatusNotFound, errors.New("no built-in synth"))
		return
	}
	p := fm.Params()
	vals := p.Values()
	var out []paramView
	for _, d := range synth.Descriptors() {
		out = append(out, paramView{Name: d.Name, Value: vals[d.Name], Min: d.Min, Max: d.Max, Integer: d.Integer})
	}
	c.JSON(http.StatusOK, gin.H{"params": out})
}

func (s *Server) patchSynth(c *gin.Context) {
	var req map[string]float64
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	for name, v := range req {
		if err := s.engine.ApplyParam(name, v); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}
	s.getSynth(c)
}

// euclidPreview renders a rhythm as x/. text without touching any track.
func euclidPreview(c *gin.Context) {
	hits, err1 := strconv.Atoi(c.Query("hits"))
	steps, err2 := strconv.Atoi(c.Query("steps"))
	rotation, _ := strconv.Atoi(c.DefaultQuery("rotation", "0"))
	if err1 != nil || err2 != nil {
		fail(c, http.StatusBadRequest, errors.New("hits and steps are required"))
		return
	}
	if err := pattern.CheckLength(steps); err != nil {
		fail(c, http.StatusBadRequest, errors.Wrap(err, "steps"))
		return
	}
	var b strings.Builder
	for _, hit := range pattern.Euclid(hits, steps, rotation) {
		if hit {
			b.WriteByte('x')
		} else {
			b.WriteByte('.')
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"rhythm":  b.String(),
		"pattern": pattern.Format(pattern.EuclidSteps(c.DefaultQuery("symbol", "x"), hits, steps, rotation)),
	})
}

func (s *Server) getSession(c *gin.Context) {
	c.Header("Content-Type", "application/yaml")
	if err := session.Capture(s.engine).Save(c.Writer); err != nil {
		s.log.Error("session capture failed", "err", err)
	}
}
