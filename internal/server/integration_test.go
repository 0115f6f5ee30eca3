package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zombor/arcade-scan/internal/camera"
	"github.com/zombor/arcade-scan/internal/catalog"
	"github.com/zombor/arcade-scan/internal/metrics"
	"github.com/zombor/arcade-scan/internal/scan"
	"github.com/zombor/arcade-scan/internal/scanning"
	"github.com/zombor/arcade-scan/internal/server"
)

// stubDecoder reports the same barcode for every frame
type stubDecoder struct {
	text string
}

func (d *stubDecoder) Detect(ctx context.Context, frame *image.RGBA, state *scanning.DecoderState) (*scanning.Candidate, error) {
	c := &scanning.Candidate{Text: d.text, Confidence: 0.9, Format: "QR_CODE"}
	state.Observe(c)
	return c, nil
}

func (d *stubDecoder) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		db       *catalog.BoltDB
		service  *catalog.Service
		registry *prometheus.Registry
		scanner  *scan.Scanner
		session  *scan.Session
		ghServer *ghttp.Server
		decoder  *stubDecoder

		mu      sync.Mutex
		scans   []string
		notices []scan.NoticeKind
	)

	scanned := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), scans...)
	}

	noticed := func() []scan.NoticeKind {
		mu.Lock()
		defer mu.Unlock()
		return append([]scan.NoticeKind(nil), notices...)
	}

	getJSON := func(path string, v any) {
		resp, err := http.Get(ghServer.URL() + path)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		frames := filepath.Join(tempDir, "frames")
		Expect(os.Mkdir(frames, 0755)).To(Succeed())
		var buf bytes.Buffer
		Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 24)))).To(Succeed())
		Expect(os.WriteFile(filepath.Join(frames, "001.png"), buf.Bytes(), 0644)).To(Succeed())

		var err error
		db, err = catalog.NewBoltDB(filepath.Join(tempDir, "catalog.db"))
		Expect(err).NotTo(HaveOccurred())
		service = catalog.NewService(db)

		registry = prometheus.NewRegistry()
		m, err := metrics.NewWithRegistry(registry)
		Expect(err).NotTo(HaveOccurred())

		scans = nil
		notices = nil
		decoder = &stubDecoder{}
		cfg := scan.DefaultConfig()
		cfg.FrameInterval = 5 * time.Millisecond
		cfg.MinInterval = 0
		cam := camera.NewSession(camera.NewReplayDevice(frames), camera.NewPullSink(5*time.Millisecond), camera.Options{})
		scanner = scan.NewScanner(scan.Deps{
			Camera:  cam,
			Decoder: decoder,
			Lookup:  service,
			Metrics: m,
			Notices: func(n scan.Notice) {
				mu.Lock()
				defer mu.Unlock()
				notices = append(notices, n.Kind)
			},
		}, cfg)

		srv := server.NewServer(scanner, service, registry, server.BasicAuth{})
		ghServer = ghttp.NewServer()
		for i := 0; i < 3; i++ {
			ghServer.AppendHandlers(srv.ServeHTTP)
		}
	})

	AfterEach(func() {
		if session != nil {
			session.Stop()
		}
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
	})

	open := func(mode scan.Mode) {
		var err error
		session, err = scanner.Open(context.Background(), mode, func(text string) {
			mu.Lock()
			defer mu.Unlock()
			scans = append(scans, text)
		}, nil)
		Expect(err).NotTo(HaveOccurred())
	}

	It("should scan a registered machine and report it", func() {
		// --- Step 1: register the machine ---
		resp, err := http.Post(ghServer.URL()+"/api/catalog/machine", "application/json",
			bytes.NewBufferString(`{"barcode":"MACHINE_7","name":"Donkey Kong"}`))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		// --- Step 2: scan it ---
		decoder.text = "MACHINE_7"
		open(scan.ModeMachine)
		Eventually(scanned, 2*time.Second).Should(Equal([]string{"MACHINE_7"}))

		// --- Step 3: check status and metrics ---
		var status scan.Status
		getJSON("/api/session", &status)
		Expect(status.State).To(Equal("completed"))
		Expect(status.Mode).To(Equal(scan.ModeMachine))

		resp, err = http.Get(ghServer.URL() + "/metrics")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`arcade_scan_scans_total{category="machine",outcome="accepted"} 1`))
		Expect(string(body)).To(ContainSubstring("arcade_scan_live_streams 0"))
	})

	It("should keep scanning when the machine is not registered", func() {
		decoder.text = "MACHINE_404"
		open(scan.ModeMachine)

		Eventually(noticed, 2*time.Second).Should(ContainElement(scan.NoticeLookupFailed))
		Expect(scanned()).To(BeEmpty())

		var status scan.Status
		getJSON("/api/session", &status)
		Expect(status.State).To(Equal("processing"))
		Expect(status.LastError).To(ContainSubstring("MACHINE_404"))
	})
})
