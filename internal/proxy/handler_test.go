package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/doc-bridge/internal/aggregate"
	"github.com/any-hub/doc-bridge/internal/artifact"
	"github.com/any-hub/doc-bridge/internal/bridge"
	"github.com/any-hub/doc-bridge/internal/cache"
	"github.com/any-hub/doc-bridge/internal/engine"
	"github.com/any-hub/doc-bridge/internal/server"
)

type fakeCaller struct {
	mu       sync.Mutex
	keys     []string
	payloads []string
	respond func(key, payload string) (bridge.Response, error)
}

func (f *fakeCaller) Call(_ context.Context, key, payload string, _ time.Duration) (bridge.Response, error) {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	return f.respond(key, payload)
}

func (f *fakeCaller) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func reply(body string) func(string, string) (bridge.Response, error) {
	return func(key, _ string) (bridge.Response, error) {
		return bridge.Response{Key: key, CorrelationID: "corr-1", Body: body}, nil
	}
}

func fail(err error) func(string, string) (bridge.Response, error) {
	return func(string, string) (bridge.Response, error) {
		return bridge.Response{}, err
	}
}

type testEnv struct {
	app       *fiber.App
	caller    *fakeCaller
	store     cache.Store
	transport *engine.ChannelTransport
	records   *aggregate.Aggregator

	mu        sync.Mutex
	persisted []aggregate.Record
}

func newTestEnv(t *testing.T, caller Caller) *testEnv {
	t.Helper()
	logger := discardLogger()

	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{store: store, transport: engine.NewChannelTransport(8)}
	t.Cleanup(func() { _ = env.transport.Close() })
	if fc, ok := caller.(*fakeCaller); ok {
		env.caller = fc
	}

	env.records, err = aggregate.New(nil, aggregate.SinkFunc(func(_ context.Context, rec aggregate.Record) error {
		env.mu.Lock()
		env.persisted = append(env.persisted, rec)
		env.mu.Unlock()
		return nil
	}), logger)
	require.NoError(t, err)

	handler, err := NewHandler(Options{
		Logger:         logger,
		Caller:         caller,
		Sender:         env.transport,
		Store:          store,
		Parts:          env.records,
		RequestTimeout: 200 * time.Millisecond,
		QueryTimeout:   50 * time.Millisecond,
	})
	require.NoError(t, err)

	env.app, err = server.NewApp(server.AppOptions{Logger: logger})
	require.NoError(t, err)
	handler.Register(env.app)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader) (*http.Response, string) {
	t.Helper()
	resp, err := e.app.Test(httptest.NewRequest(method, target, body), fiber.TestConfig{Timeout: 2 * time.Second})
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewHandlerRequiresDependencies(t *testing.T) {
	_, err := NewHandler(Options{})
	require.Error(t, err)
}

func TestSearchReturnsBodyVerbatim(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply(`{"hits":["elm/core"]}`)})

	resp, body := env.do(t, http.MethodGet, "/search?q=core&limit=5", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, `{"hits":["elm/core"]}`, body)
	require.Contains(t, resp.Header.Get(fiber.HeaderContentType), "application/json")
	require.Equal(t, []string{"q=core&limit=5"}, env.caller.keys)
}

func TestSearchPlainTextBody(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply("no results")})

	resp, body := env.do(t, http.MethodGet, "/search?q=zzz", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "no results", body)
	require.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/plain")
}

func TestSearchRequiresQuery(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply("unused")})

	resp, _ := env.do(t, http.MethodGet, "/search", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Zero(t, env.caller.calls())
}

func TestSearchErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"timeout", bridge.ErrTimeout, fiber.StatusRequestTimeout, "request_timeout"},
		{"overloaded", bridge.ErrOverloaded, fiber.StatusServiceUnavailable, "engine_overloaded"},
		{"cancelled", context.Canceled, fiber.StatusServiceUnavailable, "request_cancelled"},
		{"transport", engine.ErrClosed, fiber.StatusBadGateway, "engine_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeCaller{respond: fail(tc.err)})

			resp, body := env.do(t, http.MethodGet, "/search?q=list", nil)
			require.Equal(t, tc.status, resp.StatusCode)

			var payload map[string]string
			require.NoError(t, json.Unmarshal([]byte(body), &payload))
			require.Equal(t, tc.code, payload["error"])
		})
	}
}

func TestSearchTimesOutWithSilentEngine(t *testing.T) {
	tr := engine.NewChannelTransport(8)
	t.Cleanup(func() { _ = tr.Close() })
	go func() {
		for range tr.Requests() {
			// 引擎收到请求但从不回应。
		}
	}()

	b, err := bridge.New(bridge.Options{Transport: tr, Logger: discardLogger()})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))

	env := newTestEnv(t, b)
	resp, _ := env.do(t, http.MethodGet, "/search?q=list", nil)
	require.Equal(t, fiber.StatusRequestTimeout, resp.StatusCode)
	require.Zero(t, b.Inflight())
}

func TestArtifactMissComputesThenHits(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply(`{"name":"elm/core"}`)})
	target := "/packages/elm/core/1.0.0/manifest"

	resp, body := env.do(t, http.MethodGet, target, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "false", resp.Header.Get(headerCacheHit))
	require.Equal(t, `{"name":"elm/core"}`, body)

	coord := cache.Coordinate{Author: "elm", Name: "core", Version: "1.0.0"}
	require.True(t, env.store.Has(context.Background(), coord, artifact.KindManifest))

	resp, body = env.do(t, http.MethodGet, target, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "true", resp.Header.Get(headerCacheHit))
	require.Equal(t, `{"name":"elm/core"}`, body)
	require.Equal(t, 1, env.caller.calls())

	var req artifactRequest
	require.NoError(t, json.Unmarshal([]byte(env.caller.payloads[0]), &req))
	require.Equal(t, artifact.KindManifest, req.Artifact)
	require.Equal(t, coord, req.Coordinate)
	require.Equal(t, target, env.caller.keys[0])
}

func TestArtifactCorruptEntryIsRecomputed(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply(`{"ok":true}`)})
	coord := cache.Coordinate{Author: "elm", Name: "json", Version: "1.1.3"}
	_, err := env.store.Put(context.Background(), coord, artifact.KindDocs, strings.NewReader("{broken"))
	require.NoError(t, err)

	resp, body := env.do(t, http.MethodGet, "/packages/elm/json/1.1.3/docs", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "false", resp.Header.Get(headerCacheHit))
	require.Equal(t, `{"ok":true}`, body)
	require.Equal(t, 1, env.caller.calls())

	cached, err := cache.ReadBytes(context.Background(), env.store, coord, artifact.KindDocs)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(cached))
}

func TestArtifactMalformedEngineBodyIsNotCached(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply("not json")})

	resp, _ := env.do(t, http.MethodGet, "/packages/elm/core/1.0.0/docs", nil)
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	coord := cache.Coordinate{Author: "elm", Name: "core", Version: "1.0.0"}
	require.False(t, env.store.Has(context.Background(), coord, artifact.KindDocs))
}

func TestArtifactTimeoutIsNotCached(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: fail(bridge.ErrTimeout)})

	resp, _ := env.do(t, http.MethodGet, "/packages/elm/core/1.0.0/readme", nil)
	require.Equal(t, fiber.StatusRequestTimeout, resp.StatusCode)

	coord := cache.Coordinate{Author: "elm", Name: "core", Version: "1.0.0"}
	require.False(t, env.store.Has(context.Background(), coord, artifact.KindReadme))
}

func TestArtifactUnknownKind(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply("unused")})

	resp, _ := env.do(t, http.MethodGet, "/packages/elm/core/1.0.0/tarball", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Zero(t, env.caller.calls())
}

func TestPutArtifactStoresAndForwards(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply("unused")})

	resp, _ := env.do(t, http.MethodPut, "/packages/elm/core/1.0.0/readme", strings.NewReader("# core"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	select {
	case msg := <-env.transport.Requests():
		add, ok := msg.(engine.AddArtifact)
		require.True(t, ok, "expected AddArtifact, got %T", msg)
		require.Equal(t, artifact.KindReadme, add.Artifact)
		require.Equal(t, "# core", add.Content)
		require.Equal(t, "elm", add.Coordinate.Author)
	case <-time.After(time.Second):
		t.Fatal("AddArtifact was not sent")
	}

	resp, body := env.do(t, http.MethodGet, "/packages/elm/core/1.0.0/readme", nil)
	require.Equal(t, "true", resp.Header.Get(headerCacheHit))
	require.Equal(t, "# core", body)
}

func TestPutArtifactRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply("unused")})

	resp, _ := env.do(t, http.MethodPut, "/packages/elm/core/1.0.0/manifest", strings.NewReader("{"))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRecordPartsCompleteThenSeal(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply("unused")})

	submit := func(part, value string) (*http.Response, map[string]any) {
		resp, body := env.do(t, http.MethodPut, "/-/records/"+part+"/elm/core", strings.NewReader(value))
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &payload))
		return resp, payload
	}

	_, payload := submit("readme", "# core")
	require.Equal(t, false, payload["complete"])
	_, payload = submit("docs", "[]")
	require.Equal(t, false, payload["complete"])

	resp, body := env.do(t, http.MethodGet, "/-/records/elm/core", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, body, `"missing":["info"]`)

	_, payload = submit("info", `{"name":"elm/core","version":"1.0.0"}`)
	require.Equal(t, true, payload["complete"])

	resp, _ = submit("info", "{}")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	env.mu.Lock()
	defer env.mu.Unlock()
	require.Len(t, env.persisted, 1)
	require.Equal(t, "elm/core", env.persisted[0].Key)
	require.Equal(t, "# core", env.persisted[0].Part("readme"))
}

func TestStageSendsCachedArtifacts(t *testing.T) {
	env := newTestEnv(t, &fakeCaller{respond: reply("unused")})
	coord := cache.Coordinate{Author: "elm", Name: "html", Version: "1.0.0"}
	_, err := env.store.Put(context.Background(), coord, artifact.KindReadme, bytes.NewBufferString("# html"))
	require.NoError(t, err)

	resp, body := env.do(t, http.MethodPost, "/-/stage/elm/html/1.0.0", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Staged  []string `json:"staged"`
		Missing []string `json:"missing"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	require.Equal(t, []string{artifact.KindReadme}, payload.Staged)
	require.ElementsMatch(t, []string{artifact.KindDocs, artifact.KindManifest, artifact.KindModule}, payload.Missing)

	msg := <-env.transport.Requests()
	require.Equal(t, engine.KindAddArtifact, msg.Kind())
}

func TestStagerExplicitKinds(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	tr := engine.NewChannelTransport(4)
	defer tr.Close()

	coord := cache.Coordinate{Author: "elm", Name: "url", Version: "1.0.0"}
	_, err = store.Put(context.Background(), coord, artifact.KindDocs, strings.NewReader("[bad"))
	require.NoError(t, err)

	staged, missing, err := NewStager(store, tr).Stage(context.Background(), coord, artifact.KindDocs, artifact.KindReadme)
	require.NoError(t, err)
	require.Empty(t, staged)
	require.Equal(t, []string{artifact.KindDocs, artifact.KindReadme}, missing)
}
