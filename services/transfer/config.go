package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config agrupa toda a configuração do serviço. Imutável depois de carregada;
// nada aqui vira estado global.
type Config struct {
	ServiceName string
	Port        string

	// IXC
	IXCHost    string
	IXCToken   string
	IXCTimeout time.Duration

	// Provedores de enriquecimento (best-effort, timeout curto)
	BrasilAPIURL    string
	ViaCEPURL       string
	GeocoderURL     string
	GeocoderEnabled bool
	ProviderTimeout time.Duration

	// Valores fixos do fluxo
	DefaultTechnicianID string
	BranchID            string
}

// LoadConfig lê .env (quando existir) e o ambiente. TOKEN_API e HOST_API são
// obrigatórios, igual ao serviço original.
func LoadConfig() (Config, error) {
	// .env ausente não é erro em produção
	_ = godotenv.Load()

	token := os.Getenv("TOKEN_API")
	host := os.Getenv("HOST_API")
	if token == "" || host == "" {
		return Config{}, fmt.Errorf("variáveis TOKEN_API e HOST_API devem estar definidas")
	}

	return Config{
		ServiceName:         getEnv("SERVICE_NAME", "transfer-service"),
		Port:                getEnv("PORT", "8080"),
		IXCHost:             host,
		IXCToken:            token,
		IXCTimeout:          30 * time.Second,
		BrasilAPIURL:        getEnv("BRASILAPI_URL", "https://brasilapi.com.br"),
		ViaCEPURL:           getEnv("VIACEP_URL", "https://viacep.com.br"),
		GeocoderURL:         getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderEnabled:     getEnv("GEOCODER_ENABLED", "false") == "true",
		ProviderTimeout:     5 * time.Second,
		DefaultTechnicianID: getEnv("DEFAULT_TECH_ID", "147"),
		BranchID:            getEnv("BRANCH_ID", "2"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
