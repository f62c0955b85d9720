//go:build e2e

package e2e

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"syscall"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gexec"
)

func freeAddr() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	defer ln.Close()
	return ln.Addr().String()
}

var _ = Describe("stbuild serve", func() {
	var (
		e       *env
		session *gexec.Session
		url     string
	)

	BeforeEach(func() {
		e = newEnv()
		addr := freeAddr()
		url = "http://" + addr

		var err error
		session, err = gexec.Start(e.command("serve", "--listen", addr), GinkgoWriter, GinkgoWriter)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() (int, error) {
			resp, err := http.Get(url + "/healthz")
			if err != nil {
				return 0, err
			}
			resp.Body.Close()
			return resp.StatusCode, nil
		}).Should(Equal(http.StatusOK))
	})

	AfterEach(func() {
		session.Signal(syscall.SIGTERM)
		Eventually(session).Should(gexec.Exit(0))
	})

	submit := func(task string) runJSON {
		body := `{"task":"` + task + `","source":"` + e.source + `"}`
		resp, err := http.Post(url+"/v1/runs", "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

		var run runJSON
		Expect(json.NewDecoder(resp.Body).Decode(&run)).To(Succeed())
		return run
	}

	getRun := func(id string) runJSON {
		resp, err := http.Get(url + "/v1/runs/" + id)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var run runJSON
		Expect(json.NewDecoder(resp.Body).Decode(&run)).To(Succeed())
		return run
	}

	It("compiles a submitted run and streams its states", func() {
		run := submit("compile")
		Expect(run.Status).To(Equal("pending"))

		resp, err := http.Get(url + "/v1/runs/" + run.ID + "/events")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var states []string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok || !strings.HasPrefix(data, "{") {
				continue
			}
			var ev struct {
				State string `json:"state"`
			}
			Expect(json.Unmarshal([]byte(data), &ev)).To(Succeed())
			states = append(states, ev.State)
		}

		Expect(states).To(Equal([]string{
			"session_starting", "desktop_ready", "editor_open", "source_merged",
			"saved_as_native", "editor_closed", "compiler_open", "artifact_selected",
			"compiled", "linked", "session_stopped",
		}))
		Eventually(func() string { return getRun(run.ID).Status }).Should(Equal("completed"))
	})

	It("keeps a run session until it is stopped", func() {
		run := submit("run")
		Eventually(func() string { return getRun(run.ID).Status }).Should(Equal("completed"))

		var health struct {
			Sessions int `json:"sessions"`
		}
		resp, err := http.Get(url + "/healthz")
		Expect(err).NotTo(HaveOccurred())
		Expect(json.NewDecoder(resp.Body).Decode(&health)).To(Succeed())
		resp.Body.Close()
		Expect(health.Sessions).To(Equal(1))

		resp, err = http.Post(url+"/v1/sessions/stop", "application/json", strings.NewReader(`{}`))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var stopped struct {
			Stopped int `json:"stopped"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&stopped)).To(Succeed())
		Expect(stopped.Stopped).To(Equal(1))
	})

	It("exposes run metrics", func() {
		run := submit("compile")
		Eventually(func() string { return getRun(run.ID).Status }).Should(Equal("completed"))

		resp, err := http.Get(url + "/metrics")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var body strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			body.WriteString(scanner.Text())
			body.WriteString("\n")
		}
		Expect(body.String()).To(ContainSubstring(`stbuild_runs_total{status="completed",task="compile"} 1`))
		Expect(body.String()).To(ContainSubstring("stbuild_http_requests_total"))
	})
})
