package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  api_port: "8080"
  metrics_port: "9090"

llm:
  endpoint: "http://localhost:11434"
  model: "claude-3-5-sonnet"
  timeout: "30s"
  retry_count: 3
  provider: "anthropic"
  temperature: 0.3
  max_tokens: 500

redis:
  url: "redis://localhost:6379"
  namespace: "wave-test"

domains:
  - name: "backend"
    patterns:
      - "services/**/*.go"

gates:
  sequence: "standard"
  max_retries: 3

consensus:
  approval_threshold: 0.8
  human_review_threshold: 0.5

logging:
  level: "info"
  format: "json"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())

				Expect(cfg.Server.APIPort).To(Equal("8080"))
				Expect(cfg.Server.MetricsPort).To(Equal("9090"))

				Expect(cfg.LLM.Endpoint).To(Equal("http://localhost:11434"))
				Expect(cfg.LLM.Model).To(Equal("claude-3-5-sonnet"))
				Expect(cfg.LLM.Timeout).To(Equal(30 * time.Second))
				Expect(cfg.LLM.RetryCount).To(Equal(3))
				Expect(cfg.LLM.Provider).To(Equal("anthropic"))
				Expect(cfg.LLM.Temperature).To(Equal(float32(0.3)))
				Expect(cfg.LLM.MaxTokens).To(Equal(500))

				Expect(cfg.Redis.URL).To(Equal("redis://localhost:6379"))
				Expect(cfg.Redis.Namespace).To(Equal("wave-test"))

				Expect(cfg.Domains).To(HaveLen(1))
				Expect(cfg.Domains[0].Name).To(Equal("backend"))
				Expect(cfg.Domains[0].Patterns).To(ContainElement("services/**/*.go"))

				Expect(cfg.Gates.Sequence).To(Equal(GateSequenceStandard))
				Expect(cfg.Gates.MaxRetries).To(Equal(3))

				Expect(cfg.Consensus.ApprovalThreshold).To(Equal(0.8))
				Expect(cfg.Consensus.HumanReviewThreshold).To(Equal(0.5))

				Expect(cfg.Logging.Level).To(Equal("info"))
				Expect(cfg.Logging.Format).To(Equal("json"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
server:
  api_port: "3000"

llm:
  endpoint: "http://localhost:8080"
  model: "test-model"
  provider: "anthropic"
`
				err := os.WriteFile(configFile, []byte(minimalConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load with defaults for missing values", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Server.APIPort).To(Equal("3000"))
				Expect(cfg.LLM.Endpoint).To(Equal("http://localhost:8080"))
				Expect(cfg.LLM.Model).To(Equal("test-model"))

				Expect(cfg.Redis.Namespace).To(Equal("wave"))
				Expect(cfg.Gates.MaxRetries).To(Equal(3))
				Expect(cfg.RetrySubgraph.MaxRetries).To(Equal(7))
				Expect(cfg.Consensus.ApprovalThreshold).To(Equal(0.8))
				Expect(cfg.Consensus.HumanReviewThreshold).To(Equal(0.5))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  api_port: "8080"
  invalid_yaml: [
llm:
  endpoint: "test"
`
				err := os.WriteFile(configFile, []byte(invalidConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when config has invalid duration formats", func() {
			BeforeEach(func() {
				invalidDurationConfig := `
server:
  api_port: "8080"

llm:
  endpoint: "http://localhost:11434"
  model: "test"
  timeout: "invalid-duration"
  provider: "anthropic"
`
				err := os.WriteFile(configFile, []byte(invalidDurationConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})
	})

	Describe("validate", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = &Config{
				Server: ServerConfig{
					APIPort:     "8080",
					MetricsPort: "9090",
				},
				LLM: LLMConfig{
					Endpoint:    "http://localhost:11434",
					Model:       "claude-3-5-sonnet",
					Timeout:     30 * time.Second,
					RetryCount:  3,
					Provider:    "anthropic",
					Temperature: 0.3,
					MaxTokens:   500,
				},
				Gates: GatesConfig{
					Sequence:   GateSequenceStandard,
					MaxRetries: 3,
				},
				Consensus: ConsensusConfig{
					ApprovalThreshold:    0.8,
					HumanReviewThreshold: 0.5,
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
			}
		})

		Context("when config is valid", func() {
			It("should pass validation", func() {
				err := validate(cfg)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when LLM provider is invalid", func() {
			BeforeEach(func() {
				cfg.LLM.Provider = "invalid"
			})

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("unsupported LLM provider"))
			})
		})

		Context("when LLM model is missing", func() {
			BeforeEach(func() {
				cfg.LLM.Model = ""
			})

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM model is required"))
			})
		})

		Context("when LLM temperature is out of range", func() {
			BeforeEach(func() {
				cfg.LLM.Temperature = 1.5
			})

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM temperature must be between 0.0 and 1.0"))
			})
		})

		Context("when gates max retries is invalid", func() {
			BeforeEach(func() {
				cfg.Gates.MaxRetries = 0
			})

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("gates max retries must be greater than 0"))
			})
		})

		Context("when gate sequence is unsupported", func() {
			BeforeEach(func() {
				cfg.Gates.Sequence = "bogus"
			})

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("unsupported gate sequence"))
			})
		})

		Context("when human review threshold is not below approval threshold", func() {
			BeforeEach(func() {
				cfg.Consensus.HumanReviewThreshold = 0.9
			})

			It("should return validation error", func() {
				err := validate(cfg)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("human review threshold"))
			})
		})

		Context("when LLM retry count is negative", func() {
			BeforeEach(func() {
				cfg.LLM.RetryCount = -1
			})

			It("should pass validation", func() {
				err := validate(cfg)
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	Describe("loadFromEnv", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = &Config{}
			os.Clearenv()
		})

		Context("when environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("LLM_ENDPOINT", "http://test:8080")
				os.Setenv("LLM_MODEL", "test-model")
				os.Setenv("LLM_PROVIDER", "anthropic")
				os.Setenv("API_PORT", "3000")
				os.Setenv("METRICS_PORT", "9999")
				os.Setenv("LOG_LEVEL", "debug")
				os.Setenv("SLACK_ENABLED", "true")
			})

			AfterEach(func() {
				os.Clearenv()
			})

			It("should load values from environment", func() {
				err := loadFromEnv(cfg)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.LLM.Endpoint).To(Equal("http://test:8080"))
				Expect(cfg.LLM.Model).To(Equal("test-model"))
				Expect(cfg.LLM.Provider).To(Equal("anthropic"))
				Expect(cfg.Server.APIPort).To(Equal("3000"))
				Expect(cfg.Server.MetricsPort).To(Equal("9999"))
				Expect(cfg.Logging.Level).To(Equal("debug"))
				Expect(cfg.Slack.Enabled).To(BeTrue())
			})
		})

		Context("when no environment variables are set", func() {
			It("should not modify config", func() {
				originalConfig := *cfg
				err := loadFromEnv(cfg)
				Expect(err).NotTo(HaveOccurred())
				Expect(*cfg).To(Equal(originalConfig))
			})
		})
	})
})
