package wormhole_test

import (
	"context"
	"encoding/json"
	"errors"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tauraamui/wormhole/pkg/configdef"
	"github.com/tauraamui/wormhole/pkg/dashboard"
	data "github.com/tauraamui/wormhole/pkg/database"
	"github.com/tauraamui/wormhole/pkg/database/models"
	"github.com/tauraamui/wormhole/pkg/database/repos"
	"github.com/tauraamui/wormhole/pkg/encoder"
	"github.com/tauraamui/wormhole/pkg/filter"
	"github.com/tauraamui/wormhole/pkg/video/videobackend"
	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"github.com/tauraamui/wormhole/pkg/wormhole"
	"github.com/tauraamui/xerror"
)

type testConfigResolver struct {
	values configdef.Values
	err    error
}

func (tcr testConfigResolver) Resolve() (configdef.Values, error) {
	return tcr.values, tcr.err
}

type unreachableBackend struct{}

func (unreachableBackend) Connect(context.Context, string) (videobackend.Connection, error) {
	return nil, xerror.New("host unreachable")
}

func (unreachableBackend) NewEncoder() encoder.Encoder { return encoder.JPEG() }

func testValues() configdef.Values {
	return configdef.Values{
		Host:    "127.0.0.1",
		Port:    8080,
		Backend: "mock",
		Sources: []configdef.Source{{Name: "default", Address: "mock", Loop: true}},
		Feeds: []configdef.Feed{
			{Name: "small", Parent: "default", Width: 64, Height: 48},
			{Name: "gray", Parent: "small", Filters: []configdef.Filter{{Kind: configdef.FilterGrayscale}}},
		},
		Streams: []configdef.Stream{
			{Route: "/", Feed: "default", Quality: 80, TargetFPS: 30, BackoffMS: 20},
			{Route: "/small", Feed: "small", Quality: 50, TargetFPS: 30, BackoffMS: 20},
			{
				Route: "/inverted", Feed: "gray", Quality: 50, TargetFPS: 30, BackoffMS: 20,
				Filters: []configdef.Filter{{Kind: configdef.FilterInvert, Deferred: true}},
			},
		},
		History:   configdef.History{Enabled: true, MaxRecords: 10},
		Dashboard: configdef.Dashboard{Enabled: true, IntervalMS: 20},
	}
}

func silentLog(string, ...interface{}) {}

type ServerTestSuite struct {
	suite.Suite
	server *wormhole.Server
	resets []func()
}

func (suite *ServerTestSuite) SetupTest() {
	suite.resets = []func(){
		overloadInfoLog(silentLog),
		overloadWarnLog(silentLog),
		overloadErrorLog(silentLog),
		wormhole.OverloadConnectDB(func() (repos.GormWrapper, error) {
			return data.Open(":memory:")
		}),
	}

	server, err := wormhole.NewServer(testConfigResolver{values: testValues()}, videobackend.Mock())
	suite.Require().NoError(err)
	suite.server = server
}

func (suite *ServerTestSuite) TearDownTest() {
	<-suite.server.Shutdown()
	for _, reset := range suite.resets {
		reset()
	}
}

func (suite *ServerTestSuite) start() {
	suite.Require().Empty(suite.server.Connect())
	suite.server.SetupProcesses()
	suite.server.RunProcesses()
}

// openStream requests route and returns a reader over its parts.
func (suite *ServerTestSuite) openStream(base, route string) (*http.Response, *multipart.Reader) {
	resp, err := http.Get(base + route)
	suite.Require().NoError(err)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	suite.Require().NoError(err)
	suite.Require().Equal("multipart/x-mixed-replace", mediaType)
	return resp, multipart.NewReader(resp.Body, params["boundary"])
}

func (suite *ServerTestSuite) serve() (string, func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- suite.server.ServeListener(ctx, ln) }()

	return "http://" + ln.Addr().String(), func() {
		cancel()
		select {
		case err := <-served:
			suite.NoError(err)
		case <-time.After(10 * time.Second):
			suite.Fail("server did not stop serving")
		}
	}
}

func (suite *ServerTestSuite) TestStreamsDecodableJPEGPartsOfDerivedFeed() {
	suite.start()
	ts := httptest.NewServer(suite.server.Handler())
	defer ts.Close()
	defer func() { <-suite.server.Shutdown() }()

	resp, parts := suite.openStream(ts.URL, "/small")
	defer resp.Body.Close()

	for i := 0; i < 2; i++ {
		part, err := parts.NextPart()
		suite.Require().NoError(err)
		suite.Equal(encoder.ContentTypeJPEG, part.Header.Get("Content-Type"))

		img, err := jpeg.Decode(part)
		suite.Require().NoError(err)
		suite.Equal(64, img.Bounds().Dx())
		suite.Equal(48, img.Bounds().Dy())
	}
}

func (suite *ServerTestSuite) TestUnknownPathIsNotFound() {
	ts := httptest.NewServer(suite.server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/nowhere")
	suite.Require().NoError(err)
	resp.Body.Close()
	suite.Equal(http.StatusNotFound, resp.StatusCode)
}

func (suite *ServerTestSuite) TestDeferredFiltersAreAppliedOnceServing() {
	suite.Equal(0, suite.server.RouteFilterCount("/inverted"))

	_, stop := suite.serve()
	defer stop()

	suite.Eventually(func() bool {
		return suite.server.RouteFilterCount("/inverted") == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func (suite *ServerTestSuite) TestAppendedFilterReachesLiveSession() {
	suite.start()
	ts := httptest.NewServer(suite.server.Handler())
	defer ts.Close()
	defer func() { <-suite.server.Shutdown() }()

	resp, parts := suite.openStream(ts.URL, "/small")
	defer resp.Body.Close()
	_, err := parts.NextPart()
	suite.Require().NoError(err)

	var applied atomic.Int64
	suite.Require().NoError(suite.server.AppendFilter("/small", filter.Func(
		func(f videoframe.Frame, _ uint64) (videoframe.Frame, error) {
			applied.Add(1)
			return f, nil
		},
	)))

	for i := 0; i < 3; i++ {
		_, err := parts.NextPart()
		suite.Require().NoError(err)
	}
	suite.Positive(applied.Load())
}

func (suite *ServerTestSuite) TestAppendFilterRejectsUnknownNames() {
	err := suite.server.AppendFilter("/missing", filter.Invert)
	suite.True(errors.Is(err, wormhole.ErrUnknownRoute))

	err = suite.server.AppendFeedFilter("missing", filter.Invert)
	suite.True(errors.Is(err, wormhole.ErrUnknownFeed))

	suite.NoError(suite.server.AppendFeedFilter("gray", filter.Invert))
}

func (suite *ServerTestSuite) TestMetricsExposeFeedsAndFrames() {
	suite.start()
	ts := httptest.NewServer(suite.server.Handler())
	defer ts.Close()
	defer func() { <-suite.server.Shutdown() }()

	resp, parts := suite.openStream(ts.URL, "/")
	defer resp.Body.Close()
	for i := 0; i < 2; i++ {
		_, err := parts.NextPart()
		suite.Require().NoError(err)
	}

	metrics, err := http.Get(ts.URL + wormhole.MetricsRoute)
	suite.Require().NoError(err)
	defer metrics.Body.Close()
	body, err := io.ReadAll(metrics.Body)
	suite.Require().NoError(err)

	suite.Contains(string(body), `wormhole_feed_frames_published_total{feed="default"}`)
	suite.Contains(string(body), `wormhole_feed_frames_published_total{feed="gray"}`)
	suite.Contains(string(body), `wormhole_frames_sent_total{route="/"}`)
	suite.Contains(string(body), `wormhole_sessions_active{route="/"} 1`)
}

func (suite *ServerTestSuite) TestSessionsRouteListsRecordedSessions() {
	suite.start()
	ts := httptest.NewServer(suite.server.Handler())
	defer ts.Close()
	defer func() { <-suite.server.Shutdown() }()

	resp, parts := suite.openStream(ts.URL, "/small")
	defer resp.Body.Close()
	_, err := parts.NextPart()
	suite.Require().NoError(err)

	listing, err := http.Get(ts.URL + wormhole.SessionsRoute)
	suite.Require().NoError(err)
	defer listing.Body.Close()
	suite.Equal("application/json", listing.Header.Get("Content-Type"))

	var sessions []models.Session
	suite.Require().NoError(json.NewDecoder(listing.Body).Decode(&sessions))
	suite.Require().Len(sessions, 1)
	suite.Equal("/small", sessions[0].Route)
	suite.True(sessions[0].Open())

	bad, err := http.Get(ts.URL + wormhole.SessionsRoute + "?limit=zero")
	suite.Require().NoError(err)
	bad.Body.Close()
	suite.Equal(http.StatusBadRequest, bad.StatusCode)
}

func (suite *ServerTestSuite) TestSnapshotListsOpenSessionsAndFeeds() {
	suite.start()
	ts := httptest.NewServer(suite.server.Handler())
	defer ts.Close()
	defer func() { <-suite.server.Shutdown() }()

	resp, parts := suite.openStream(ts.URL, "/inverted")
	defer resp.Body.Close()
	_, err := parts.NextPart()
	suite.Require().NoError(err)

	snapshot := suite.server.Snapshot()
	suite.Require().Len(snapshot.Sessions, 1)
	suite.Equal("/inverted", snapshot.Sessions[0].Route)

	names := []string{}
	for _, feed := range snapshot.Feeds {
		names = append(names, feed.Name)
		suite.Positive(feed.Published)
	}
	suite.Equal([]string{"default", "small", "gray"}, names)
}

func (suite *ServerTestSuite) TestDashboardPushesSnapshots() {
	base, stop := suite.serve()
	defer stop()

	conn, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(base, "http")+wormhole.DashboardRoute, nil,
	)
	suite.Require().NoError(err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		var snapshot dashboard.Snapshot
		suite.Require().NoError(conn.ReadJSON(&snapshot))
		suite.Len(snapshot.Feeds, 3)
	}
}

func (suite *ServerTestSuite) TestServeListenerEndsStreamsOnCancel() {
	suite.start()
	base, stop := suite.serve()

	resp, parts := suite.openStream(base, "/small")
	defer resp.Body.Close()
	_, err := parts.NextPart()
	suite.Require().NoError(err)

	stop()

	_, err = io.Copy(io.Discard, resp.Body)
	suite.NoError(err)
	suite.Empty(suite.server.Sessions())
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, &ServerTestSuite{})
}

func TestNewServerReturnsResolveError(t *testing.T) {
	_, err := wormhole.NewServer(testConfigResolver{err: xerror.New("no config")}, videobackend.Mock())
	assert.ErrorContains(t, err, "no config")
}

func TestNewServerRejectsReservedRoutes(t *testing.T) {
	values := testValues()
	values.History.Enabled = false
	values.Streams = append(values.Streams, configdef.Stream{Route: "/metrics", Feed: "default", Quality: 50})

	_, err := wormhole.NewServer(testConfigResolver{values: values}, videobackend.Mock())
	assert.True(t, errors.Is(err, wormhole.ErrReservedRoute))
}

func TestNewServerRejectsUnknownFilterKinds(t *testing.T) {
	values := testValues()
	values.History.Enabled = false
	values.Streams[0].Filters = []configdef.Filter{{Kind: "sepia"}}

	_, err := wormhole.NewServer(testConfigResolver{values: values}, videobackend.Mock())
	assert.True(t, errors.Is(err, wormhole.ErrUnknownFilter))
}

func TestNewServerKeepsFPSOverlayOffRoutes(t *testing.T) {
	values := testValues()
	values.History.Enabled = false
	values.Streams[0].Filters = []configdef.Filter{{Kind: configdef.FilterFPSOverlay}}

	_, err := wormhole.NewServer(testConfigResolver{values: values}, videobackend.Mock())
	assert.ErrorContains(t, err, "fps_overlay is only supported on feeds")
}

func TestSessionsRouteIsAbsentWithoutHistory(t *testing.T) {
	values := testValues()
	values.History.Enabled = false

	server, err := wormhole.NewServer(testConfigResolver{values: values}, videobackend.Mock())
	require.NoError(t, err)
	defer func() { <-server.Shutdown() }()

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + wormhole.SessionsRoute)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConnectReportsEachUnreachableSource(t *testing.T) {
	var logged []string
	defer overloadInfoLog(silentLog)()
	defer overloadErrorLog(func(format string, a ...interface{}) {
		logged = append(logged, format)
	})()

	values := testValues()
	values.History.Enabled = false
	values.Sources = append(values.Sources, configdef.Source{Name: "backyard", Address: "rtsp://backyard"})

	server, err := wormhole.NewServer(testConfigResolver{values: values}, unreachableBackend{})
	require.NoError(t, err)

	errs := server.Connect()
	require.Len(t, errs, 2)
	assert.ErrorContains(t, errs[0], "unable to connect to source [default]")
	assert.ErrorContains(t, errs[1], "unable to connect to source [backyard]")

	server.SetupProcesses()
	server.RunProcesses()
	<-server.Shutdown()
	assert.Empty(t, logged)
}

func TestConnectWithCancelledContextConnectsNothing(t *testing.T) {
	defer overloadInfoLog(silentLog)()
	values := testValues()
	values.History.Enabled = false

	server, err := wormhole.NewServer(testConfigResolver{values: values}, videobackend.Mock())
	require.NoError(t, err)
	defer func() { <-server.Shutdown() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, server.ConnectWithCancel(ctx))
}
