package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"recipebook/internal/api"
	"recipebook/internal/ingredient"
	"recipebook/internal/platform/gemini"
	"recipebook/internal/platform/localllm"
	"recipebook/internal/platform/recipeapi"
)

// Config represents the application configuration.
type Config struct {
	APIBaseURL     string   `json:"api_base_url"`
	APIToken       string   `json:"api_token"`
	DatabaseURL    string   `json:"DATABASE_URL"`
	GeminiAPIKey   string   `json:"gemini_api_key"`
	LocalLLMURL    string   `json:"local_llm_url"`
	ListenAddr     string   `json:"listen_addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// loadConfig reads path, if it exists, and applies environment overrides.
// Each key can be overridden by an environment variable with the upper-case
// key as its name; ALLOWED_ORIGINS is comma separated.
func loadConfig(path string) (Config, error) {
	config := Config{
		ListenAddr:     ":8080",
		AllowedOrigins: []string{"http://localhost:8081"},
	}

	configData, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("%s not found, using environment only", path)
	case err != nil:
		return config, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		if err := json.Unmarshal(configData, &config); err != nil {
			return config, fmt.Errorf("failed to unmarshal %s: %w", path, err)
		}
	}

	for env, dst := range map[string]*string{
		"API_BASE_URL":   &config.APIBaseURL,
		"API_TOKEN":      &config.APIToken,
		"DATABASE_URL":   &config.DatabaseURL,
		"GEMINI_API_KEY": &config.GeminiAPIKey,
		"LOCAL_LLM_URL":  &config.LocalLLMURL,
		"LISTEN_ADDR":    &config.ListenAddr,
	} {
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		config.AllowedOrigins = strings.Split(v, ",")
	}

	if config.DatabaseURL == "" && config.APIBaseURL == "" {
		return config, errors.New("either DATABASE_URL or api_base_url must be set")
	}
	return config, nil
}

// newStore picks the ingredient store: Postgres when a database is
// configured, the recipe API otherwise.
func newStore(config Config, apiClient *recipeapi.Client) (ingredient.Store, error) {
	if config.DatabaseURL != "" {
		dbStore, err := ingredient.NewPostgresStore(config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("error creating postgresstore: %w", err)
		}
		return dbStore, nil
	}
	return apiClient, nil
}

// newDetector picks the language detector: Gemini, then the local model,
// then none.
func newDetector(ctx context.Context, config Config) (ingredient.LanguageDetector, error) {
	switch {
	case config.GeminiAPIKey != "":
		geminiClient, err := gemini.NewClient(ctx, config.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("error creating gemini client: %w", err)
		}
		return geminiClient, nil
	case config.LocalLLMURL != "":
		return localllm.NewClient(config.LocalLLMURL), nil
	default:
		log.Printf("no language detector configured, new ingredients need an explicit language")
		return nil, nil
	}
}

func newRouter(handler *api.Handler, origins []string) *gin.Engine {
	r := gin.Default()

	// Configure CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	handler.RegisterRoutes(r)
	return r
}

func main() {
	ctx := context.Background()

	config, err := loadConfig("config.json")
	if err != nil {
		panic(err)
	}

	var apiClient *recipeapi.Client
	if config.APIBaseURL != "" {
		apiClient = recipeapi.NewClient(config.APIBaseURL, config.APIToken)
	}

	store, err := newStore(config, apiClient)
	if err != nil {
		panic(err)
	}

	detector, err := newDetector(ctx, config)
	if err != nil {
		panic(err)
	}

	catalog := ingredient.NewCatalog(store)
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if _, err := catalog.Load(loadCtx); err != nil {
		// The server still starts; POST /ingredients/refresh retries.
		log.Printf("initial catalog load failed: %v", err)
	}
	cancel()

	var recipes api.RecipeService
	if apiClient != nil {
		recipes = apiClient
	}
	handler := api.NewHandler(catalog, detector, recipes)

	r := newRouter(handler, config.AllowedOrigins)
	err = r.Run(config.ListenAddr)
	if closer, ok := detector.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			log.Printf("failed to close language detector: %v", cerr)
		}
	}
	if err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
