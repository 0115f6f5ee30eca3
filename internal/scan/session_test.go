package scan

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zombor/arcade-scan/internal/camera"
	"github.com/zombor/arcade-scan/internal/clock"
	"github.com/zombor/arcade-scan/internal/metrics"
	"github.com/zombor/arcade-scan/internal/scanning"
)

var _ = Describe("Session", func() {
	var (
		ctx       context.Context
		clk       *clock.Fake
		scheduler *fakeScheduler
		cam       *fakeCamera
		decoder   *fakeDecoder
		lookup    *fakeLookup
		rec       *recorder
		scanner   *Scanner
		session   *Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = clock.NewFake(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
		scheduler = &fakeScheduler{}
		cam = newFakeCamera()
		decoder = &fakeDecoder{}
		lookup = &fakeLookup{}
		rec = &recorder{}

		m, err := metrics.NewWithRegistry(prometheus.NewRegistry())
		Expect(err).NotTo(HaveOccurred())

		scanner = NewScanner(Deps{
			Camera:    cam,
			Decoder:   decoder,
			Lookup:    lookup,
			Clock:     clk,
			Scheduler: scheduler,
			Metrics:   m,
			Notices:   rec.onNotice,
		}, DefaultConfig())
		session = scanner.NewSession(ModeMachine, rec.onScan, rec.onClose)
	})

	AfterEach(func() {
		session.Stop()
	})

	startScanning := func() {
		Expect(session.Start(ctx)).To(Succeed())
		Eventually(session.State).Should(Equal(Scanning))
	}

	// tick fires one frame once the gate interval has passed and waits for the decode to settle
	tick := func() {
		clk.Advance(DefaultMinInterval)
		calls := decoder.Calls()
		Expect(scheduler.Fire()).To(Equal(1))
		Eventually(decoder.Calls).Should(Equal(calls + 1))
		Eventually(scheduler.Pending).Should(Equal(1))
	}

	It("should start idle with a unique id", func() {
		Expect(session.State()).To(Equal(Idle))
		Expect(session.ID()).NotTo(BeEmpty())
		Expect(scanner.NewSession(ModeMachine, nil, nil).ID()).NotTo(Equal(session.ID()))
		Expect(scanner.Current()).NotTo(BeIdenticalTo(session))
	})

	When("the camera is acquired", func() {
		It("should wait for the first frame before scanning", func() {
			cam.notReady = true
			Expect(session.Start(ctx)).To(Succeed())
			Expect(session.State()).To(Equal(AwaitingFirstFrame))
			Consistently(scheduler.Pending, 50*time.Millisecond).Should(Equal(0))

			cam.signalReady()

			Eventually(session.State).Should(Equal(Scanning))
			Expect(scheduler.Pending()).To(Equal(1))
		})

		It("should ignore a second start", func() {
			startScanning()
			Expect(session.Start(ctx)).To(Succeed())
			acquisitions, _ := cam.Counts()
			Expect(acquisitions).To(Equal(1))
		})
	})

	When("the camera cannot be acquired", func() {
		var acquireErr error

		BeforeEach(func() {
			acquireErr = &camera.UnavailableError{Reason: camera.ReasonNotFound, Err: camera.ErrNotFound}
			cam.acquireErrs = []error{acquireErr}
		})

		It("should fail and report the reason", func() {
			err := session.Start(ctx)
			Expect(err).To(MatchError(camera.ErrNotFound))
			Expect(session.State()).To(Equal(Failed))
			Expect(session.LastError()).To(MatchError(acquireErr))
			Expect(rec.NoticeKinds()).To(Equal([]NoticeKind{NoticeCameraFailed}))
			Expect(scheduler.Pending()).To(Equal(0))
			Expect(cam.Live()).To(BeFalse())
		})

		It("should allow a retry", func() {
			Expect(session.Start(ctx)).NotTo(Succeed())
			startScanning()
			Expect(session.LastError()).NotTo(HaveOccurred())
		})
	})

	When("the decoder fails", func() {
		BeforeEach(func() {
			decoder.detect = func(int) (*scanning.Candidate, error) {
				return nil, errDecoder
			}
		})

		It("should keep scanning and record the error", func() {
			startScanning()
			for i := 0; i < 3; i++ {
				tick()
			}

			Expect(session.State()).To(Equal(Scanning))
			Expect(session.Attempts()).To(Equal(3))
			var decodeErr *DecodeError
			Expect(errors.As(session.LastError(), &decodeErr)).To(BeTrue())
			Expect(decodeErr).To(MatchError(errDecoder))

			tick()
			Expect(session.Attempts()).To(Equal(4))
		})
	})

	When("frames arrive faster than the minimum interval", func() {
		It("should throttle decode attempts", func() {
			startScanning()
			tick()

			scheduler.Fire()
			scheduler.Fire()
			Expect(decoder.Calls()).To(Equal(1))
		})
	})

	When("nothing is decoded", func() {
		It("should keep scanning", func() {
			startScanning()
			tick()
			tick()
			Expect(session.State()).To(Equal(Scanning))
			Expect(session.LastError()).NotTo(HaveOccurred())
		})
	})

	When("the confidence is not above the threshold", func() {
		BeforeEach(func() {
			decoder.detect = returns("MACHINE_42", DefaultMinConfidence)
		})

		It("should ignore the candidate", func() {
			startScanning()
			tick()
			Expect(session.State()).To(Equal(Scanning))
			Expect(rec.Scans()).To(BeEmpty())
			Expect(lookup.Calls()).To(BeEmpty())
		})
	})

	When("a matching barcode is decoded", func() {
		BeforeEach(func() {
			decoder.detect = returns("MACHINE_42", 0.9)
		})

		It("should deliver it once and release the camera", func() {
			startScanning()
			clk.Advance(DefaultMinInterval)
			scheduler.Fire()

			Eventually(rec.Scans).Should(Equal([]string{"MACHINE_42"}))
			Expect(session.State()).To(Equal(Completed))
			Expect(lookup.Calls()).To(Equal([]string{"machine:MACHINE_42"}))
			Expect(cam.Live()).To(BeFalse())
			Expect(scheduler.Fire()).To(Equal(0))
			Expect(rec.NoticeKinds()).To(BeEmpty())
		})

		It("should scan again after a restart", func() {
			startScanning()
			scheduler.Fire()
			Eventually(session.State).Should(Equal(Completed))

			startScanning()
			Expect(session.Attempts()).To(Equal(0))
			scheduler.Fire()
			Eventually(rec.Scans).Should(HaveLen(2))
		})
	})

	When("the barcode does not match the mode", func() {
		BeforeEach(func() {
			decoder.detect = returns("PRIZE_7", 0.9)
		})

		It("should forward it with a mismatch notice", func() {
			startScanning()
			scheduler.Fire()

			Eventually(rec.Scans).Should(Equal([]string{"PRIZE_7"}))
			Expect(rec.NoticeKinds()).To(Equal([]NoticeKind{NoticeMismatch}))
			Expect(session.State()).To(Equal(Completed))
			Expect(lookup.Calls()).To(BeEmpty())
			var mismatch *MismatchError
			Expect(errors.As(session.LastError(), &mismatch)).To(BeTrue())
		})
	})

	When("the lookup fails", func() {
		BeforeEach(func() {
			decoder.detect = returns("MACHINE_42", 0.9)
			lookup.setErr(errors.New("unknown machine"))
		})

		It("should resume scanning after the delay", func() {
			startScanning()
			scheduler.Fire()

			Eventually(rec.NoticeKinds).Should(Equal([]NoticeKind{NoticeLookupFailed}))
			Expect(session.State()).To(Equal(Processing))
			Expect(session.Attempts()).To(Equal(1))
			Expect(rec.Scans()).To(BeEmpty())

			clk.Advance(DefaultResumeDelay - time.Millisecond)
			Expect(session.State()).To(Equal(Processing))

			clk.Advance(time.Millisecond)
			Expect(session.State()).To(Equal(Scanning))
			Expect(session.Attempts()).To(Equal(0))
			var lookupErr *LookupError
			Expect(errors.As(session.LastError(), &lookupErr)).To(BeTrue())
			Expect(cam.Live()).To(BeTrue())
		})

		It("should not resume once stopped", func() {
			startScanning()
			scheduler.Fire()
			Eventually(rec.NoticeKinds).Should(HaveLen(1))

			session.Stop()
			clk.Advance(DefaultResumeDelay)
			Expect(session.State()).To(Equal(Closed))
		})
	})

	When("stopped", func() {
		It("should release the camera and cancel the loop", func() {
			startScanning()
			session.Stop()

			Expect(session.State()).To(Equal(Closed))
			Expect(cam.Live()).To(BeFalse())
			Expect(scheduler.Fire()).To(Equal(0))
			Expect(decoder.Calls()).To(Equal(0))
		})

		It("should notify close once", func() {
			startScanning()
			session.Stop()
			session.Stop()
			Expect(rec.Closes()).To(Equal(1))
		})

		It("should stop before the first frame arrives", func() {
			cam.notReady = true
			Expect(session.Start(ctx)).To(Succeed())
			session.Stop()
			cam.signalReady()

			Consistently(session.State, 50*time.Millisecond).Should(Equal(Closed))
			Expect(scheduler.Pending()).To(Equal(0))
		})

		It("should drop a decode that finishes afterwards", func() {
			decoder.detect = returns("MACHINE_42", 0.9)
			decoder.block = make(chan struct{})
			startScanning()
			scheduler.Fire()
			Eventually(decoder.Calls).Should(Equal(1))

			session.Stop()
			close(decoder.block)

			Consistently(rec.Scans, 50*time.Millisecond).Should(BeEmpty())
			Expect(session.State()).To(Equal(Closed))
			Expect(lookup.Calls()).To(BeEmpty())
			Expect(scheduler.Pending()).To(Equal(0))
		})

		It("should never leak a stream across restarts", func() {
			for i := 0; i < 5; i++ {
				startScanning()
				session.Stop()
			}

			acquisitions, releases := cam.Counts()
			Expect(acquisitions).To(Equal(5))
			Expect(releases).To(Equal(5))
			Expect(cam.maxLive).To(Equal(1))
			Expect(rec.Closes()).To(Equal(5))
		})
	})

	It("should report its status", func() {
		startScanning()
		status := session.Status()
		Expect(status.ID).To(Equal(session.ID()))
		Expect(status.Mode).To(Equal(ModeMachine))
		Expect(status.State).To(Equal("scanning"))
	})
})

var _ = Describe("Scanner", func() {
	It("should reject an invalid mode", func() {
		scanner := NewScanner(Deps{Camera: newFakeCamera(), Decoder: &fakeDecoder{}}, DefaultConfig())
		session, err := scanner.Open(context.Background(), Mode("cabinet"), nil, nil)
		Expect(err).To(HaveOccurred())
		Expect(session).To(BeNil())
		Expect(scanner.Current()).To(BeNil())
	})

	When("wired to a replayed camera", func() {
		var (
			dir      string
			cam      *camera.Session
			rec      *recorder
			session  *Session
			decoder  *fakeDecoder
			cfg      Config
			scanner  *Scanner
			writePNG func(name string)
		)

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			writePNG = func(name string) {
				var buf bytes.Buffer
				Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 24)))).To(Succeed())
				Expect(os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0644)).To(Succeed())
			}
			writePNG("001.png")
			writePNG("002.png")

			cam = camera.NewSession(camera.NewReplayDevice(dir), camera.NewPullSink(5*time.Millisecond), camera.Options{})
			rec = &recorder{}
			decoder = &fakeDecoder{detect: func(call int) (*scanning.Candidate, error) {
				if call < 3 {
					return nil, nil
				}
				return &scanning.Candidate{Text: "part-0042", Confidence: 0.95, Format: "CODE_128"}, nil
			}}
			cfg = DefaultConfig()
			cfg.MinInterval = 0
			cfg.FrameInterval = 5 * time.Millisecond
			scanner = NewScanner(Deps{Camera: cam, Decoder: decoder, Lookup: &fakeLookup{}, Notices: rec.onNotice}, cfg)
		})

		AfterEach(func() {
			if session != nil {
				session.Stop()
			}
		})

		It("should scan a barcode end to end", func() {
			var err error
			session, err = scanner.Open(context.Background(), ModeAuto, rec.onScan, rec.onClose)
			Expect(err).NotTo(HaveOccurred())
			Expect(scanner.Current()).To(BeIdenticalTo(session))

			Eventually(rec.Scans, 2*time.Second).Should(Equal([]string{"part-0042"}))
			Expect(session.State()).To(Equal(Completed))
			Expect(decoder.Calls()).To(BeNumerically(">=", 3))
			Expect(cam.Live()).To(BeFalse())
		})
	})
})
