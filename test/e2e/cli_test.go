//go:build e2e

package e2e

import (
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
)

type runJSON struct {
	ID           string `json:"id"`
	Task         string `json:"task"`
	Status       string `json:"status"`
	State        string `json:"state"`
	ArtifactPath string `json:"artifact_path"`
	ArtifactSize int64  `json:"artifact_size"`
}

var _ = Describe("stbuild CLI", func() {
	var e *env

	BeforeEach(func() {
		e = newEnv()
	})

	Describe("compile", func() {
		It("builds a program and stops the guest", func() {
			session := e.run("compile", e.source, "--json")
			Expect(session.ExitCode()).To(Equal(0))

			var run runJSON
			Expect(json.Unmarshal(session.Out.Contents(), &run)).To(Succeed())
			Expect(run.Status).To(Equal("completed"))
			Expect(run.State).To(Equal("session_stopped"))
			Expect(run.ArtifactPath).To(Equal(filepath.Join(e.workDir, "TEST.PRG")))

			info, err := os.Stat(run.ArtifactPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.ArtifactSize).To(Equal(info.Size()))
		})

		It("stages a CR LF copy and leaves the caller's file alone", func() {
			original, err := os.ReadFile(e.source)
			Expect(err).NotTo(HaveOccurred())

			Expect(e.run("compile", e.source).ExitCode()).To(Equal(0))

			staged, err := os.ReadFile(filepath.Join(e.workDir, "SOURCE.LST"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(staged)).To(Equal("PRINT \"HELLO\"\r\nPRINT 42\r\n"))

			after, err := os.ReadFile(e.source)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(original))
		})

		It("exits non-zero when the source is missing", func() {
			session := e.run("compile", filepath.Join(e.root, "missing.lst"))
			Expect(session.ExitCode()).NotTo(Equal(0))
			Expect(session.Err).To(gbytes.Say("compile failed"))
		})

		It("exits non-zero when the working directory has no compiler", func() {
			Expect(os.Remove(filepath.Join(e.template, "MENU.PRG"))).To(Succeed())
			session := e.run("compile", e.source)
			Expect(session.ExitCode()).NotTo(Equal(0))
			Expect(session.Err).To(gbytes.Say("MENU.PRG missing"))
		})

		It("rejects an unknown profile", func() {
			session := e.run("compile", e.source, "--profile", "falcon")
			Expect(session.ExitCode()).NotTo(Equal(0))
			Expect(session.Err).To(gbytes.Say(`unknown profile "falcon"`))
		})
	})

	Describe("run", func() {
		It("launches the program", func() {
			session := e.run("run", e.source)
			Expect(session.ExitCode()).To(Equal(0))
			Expect(session.Out).To(gbytes.Say("running .*hello.lst on sim"))
		})
	})

	Describe("history", func() {
		It("lists earlier runs", func() {
			Expect(e.run("compile", e.source).ExitCode()).To(Equal(0))
			Expect(e.run("compile", filepath.Join(e.root, "missing.lst")).ExitCode()).NotTo(Equal(0))

			session := e.run("history")
			Expect(session.ExitCode()).To(Equal(0))
			Expect(session.Out).To(gbytes.Say("completed"))
			Expect(session.Out).To(gbytes.Say("2 of 2 runs"))
		})
	})

	Describe("stop", func() {
		It("reports how many guests it stopped", func() {
			session := e.run("stop")
			Expect(session.ExitCode()).To(Equal(0))
			Expect(session.Out).To(gbytes.Say(`stopped 0 session\(s\)`))
		})
	})

	Describe("version", func() {
		It("prints the version", func() {
			session := e.run("version")
			Expect(session.ExitCode()).To(Equal(0))
			Expect(session.Out).To(gbytes.Say("stbuild "))
		})
	})
})
