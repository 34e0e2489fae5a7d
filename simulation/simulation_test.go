package simulation

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/config"
	"github.com/sarchlab/bindengine/datarecording"
	"github.com/sarchlab/bindengine/updater"
)

const hudScript = `
var("hp", 100)
var("bar", 0)
bind{ source = "hp", target = "bar", convert = function(v) return v / 100 end }
on_update(function() set("hp", get("hp") - 1) end)
`

var _ = Describe("Simulation", func() {
	var (
		cfg *config.Config
		s   *Simulation
	)

	BeforeEach(func() {
		cfg = config.Default()
		cfg.Engine.Frames = 5
		cfg.Scheduler.Profiling = true
	})

	AfterEach(func() {
		if s != nil {
			Expect(s.Terminate()).To(Succeed())
			s = nil
		}
	})

	It("should step the configured frames", func() {
		var err error
		s, err = MakeBuilder().
			WithConfig(cfg).
			WithLogger(zap.NewNop()).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Scripts().LoadString("hud", hudScript)).To(Succeed())
		Expect(s.Run(context.Background())).To(Succeed())

		Expect(s.Host().FrameCount()).To(Equal(uint64(5)))
		bar, _ := s.Scripts().Variable("bar")
		Expect(bar.Value).To(Equal(0.96))
		Expect(s.StepCounts().
			StepCount(updater.HookPosEntryExecuted.Name, "UpdateBefore")).
			To(Equal(uint64(5)))
		Expect(s.Monitor()).To(BeNil())
		Expect(s.DataRecorder()).To(BeNil())
	})

	It("should stop when the context is cancelled", func() {
		var err error
		s, err = MakeBuilder().
			WithConfig(cfg).
			WithLogger(zap.NewNop()).
			Build()
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(s.Run(ctx)).To(MatchError(context.Canceled))
		Expect(s.Host().FrameCount()).To(Equal(uint64(0)))
	})

	It("should load scripts from the configured directory", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "hud.lua"),
			[]byte(hudScript), 0o600)).To(Succeed())
		cfg.Scripts.Dir = dir

		var err error
		s, err = MakeBuilder().
			WithConfig(cfg).
			WithLogger(zap.NewNop()).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.LoadScripts()).To(Succeed())
		Expect(s.Context().Len()).To(Equal(1))
	})

	It("should record executions", func() {
		path := filepath.Join(GinkgoT().TempDir(), "run")

		var err error
		s, err = MakeBuilder().
			WithConfig(cfg).
			WithLogger(zap.NewNop()).
			WithRecording().
			WithOutputFileName(path).
			Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Scripts().LoadString("hud", hudScript)).To(Succeed())
		Expect(s.Run(context.Background())).To(Succeed())
		Expect(s.Terminate()).To(Succeed())

		reader, err := datarecording.NewReader(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reports, err := datarecording.Report(context.Background(), reader)
		Expect(err).NotTo(HaveOccurred())
		Expect(reports).To(HaveLen(1))
		Expect(reports[0].Stage).To(Equal("UpdateBefore"))
		Expect(reports[0].Executions).To(Equal(uint64(5)))

		reader.MapTable(datarecording.ExecInfoTable, datarecording.ExecInfo{})
		info, _, err := reader.Query(context.Background(),
			datarecording.ExecInfoTable, datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(info).To(ContainElement(
			&datarecording.ExecInfo{Property: "Session", Value: s.ID()}))
	})

	It("should serve the monitor", func() {
		var err error
		s, err = MakeBuilder().
			WithConfig(cfg).
			WithLogger(zap.NewNop()).
			WithMonitoring().
			Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.MonitorURL()).To(HavePrefix("http://localhost:"))

		rsp, err := http.Get(s.MonitorURL() + "/api/stages")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})

	It("should refuse a port without monitoring", func() {
		Expect(func() {
			_, _ = MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		}).To(Panic())
	})

	It("should refuse an output file without recording", func() {
		Expect(func() {
			_, _ = MakeBuilder().WithOutputFileName("x").Build()
		}).To(Panic())
	})

	It("should take monitor and recording settings from the config", func() {
		cfg.Monitor.Port = 9999
		cfg.Recording.Path = "ignored"

		b := MakeBuilder().WithConfig(cfg)

		Expect(b.monitorOn).To(BeFalse())
		Expect(b.monitorPort).To(Equal(0))
		Expect(b.recordingOn).To(BeFalse())
		Expect(b.outputFileName).To(BeEmpty())
	})
})
