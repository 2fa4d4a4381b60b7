package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/go-resty/resty/v2"
)

// AddressResolver resolve um CEP em endereço estruturado com coordenadas
// opcionais, encadeando provedores best-effort.
type AddressResolver interface {
	Resolve(ctx context.Context, cep string) (*EnrichmentResult, error)
}

// CEPResolver implementa a cadeia BrasilAPI → ViaCEP → geocoder. Os provedores
// preenchem coordenadas de forma inconsistente, então a cadeia tenta o barato
// primeiro e só chama o geocoder (rate-limited) por trás de flag.
type CEPResolver struct {
	http    *resty.Client
	gateway IXCGateway
	cfg     Config
}

// NewCEPResolver cria o resolver com timeout curto: enriquecimento é
// best-effort, não passo obrigatório.
func NewCEPResolver(cfg Config, gateway IXCGateway) *CEPResolver {
	client := resty.New().
		SetTimeout(cfg.ProviderTimeout).
		SetHeader("Accept", "application/json")

	return &CEPResolver{http: client, gateway: gateway, cfg: cfg}
}

// Resolve executa a cadeia de provedores. Erro de rede/parse de qualquer
// provedor vira "sem dados desse provedor"; só o "não encontrado" confirmado
// do ViaCEP derruba a resolução inteira.
func (r *CEPResolver) Resolve(ctx context.Context, cep string) (*EnrichmentResult, error) {
	digits := onlyDigits(cep)

	a := r.queryBrasilAPI(ctx, digits)
	if a != nil && a.Latitude != "" && a.Longitude != "" {
		r.attachCityID(ctx, a)
		return a, nil
	}

	b, notFound := r.queryViaCEP(ctx, digits)
	if notFound {
		return nil, &NotFoundError{Entity: "cep", Reason: "CEP não encontrado: " + cep}
	}

	var result *EnrichmentResult
	switch {
	case b != nil && a != nil:
		result = mergeEnrichment(a, b)
	case b != nil:
		result = b
	case a != nil:
		result = a
	default:
		return nil, &NotFoundError{Entity: "cep", Reason: "nenhum provedor resolveu o CEP " + cep}
	}

	if result.Latitude == "" && r.cfg.GeocoderEnabled {
		if lat, lon, ok := r.geocode(ctx, result.Street, result.City, result.State); ok {
			result.Latitude = lat
			result.Longitude = lon
		}
	}

	r.attachCityID(ctx, result)
	return result, nil
}

type brasilAPIResponse struct {
	CEP          string `json:"cep"`
	State        string `json:"state"`
	City         string `json:"city"`
	Neighborhood string `json:"neighborhood"`
	Street       string `json:"street"`
	Location     struct {
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

// queryBrasilAPI é o provedor A: às vezes traz coordenadas junto. Qualquer
// falha é engolida.
func (r *CEPResolver) queryBrasilAPI(ctx context.Context, cep string) *EnrichmentResult {
	resp, err := r.http.R().SetContext(ctx).Get(r.cfg.BrasilAPIURL + "/api/cep/v2/" + cep)
	if err != nil || !resp.IsSuccess() {
		return nil
	}

	var body brasilAPIResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.CEP == "" {
		return nil
	}

	return &EnrichmentResult{
		CEP:       formatCEP(body.CEP),
		Street:    body.Street,
		District:  body.Neighborhood,
		City:      body.City,
		State:     body.State,
		Latitude:  body.Location.Coordinates.Latitude,
		Longitude: body.Location.Coordinates.Longitude,
	}
}

type viaCEPResponse struct {
	CEP        string `json:"cep"`
	Logradouro string `json:"logradouro"`
	Bairro     string `json:"bairro"`
	Localidade string `json:"localidade"`
	UF         string `json:"uf"`
	IBGE       string `json:"ibge"`
	Erro       bool   `json:"erro"`
}

// queryViaCEP é o provedor B, canônico: "erro": true confirma que o CEP não
// existe e encerra a cadeia. Falha de rede/parse ainda é engolida.
func (r *CEPResolver) queryViaCEP(ctx context.Context, cep string) (*EnrichmentResult, bool) {
	resp, err := r.http.R().SetContext(ctx).Get(r.cfg.ViaCEPURL + "/ws/" + cep + "/json/")
	if err != nil || !resp.IsSuccess() {
		return nil, false
	}

	var body viaCEPResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, false
	}
	if body.Erro {
		return nil, true
	}

	return &EnrichmentResult{
		CEP:      formatCEP(body.CEP),
		Street:   body.Logradouro,
		District: body.Bairro,
		City:     body.Localidade,
		State:    body.UF,
		IBGECode: body.IBGE,
	}, false
}

// mergeEnrichment adota os campos do ViaCEP preferindo os campos não-coordenada
// que o BrasilAPI já tiver respondido.
func mergeEnrichment(a, b *EnrichmentResult) *EnrichmentResult {
	out := *b
	if a.Street != "" {
		out.Street = a.Street
	}
	if a.District != "" {
		out.District = a.District
	}
	if a.City != "" {
		out.City = a.City
	}
	if a.State != "" {
		out.State = a.State
	}
	return &out
}

type geocodeHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// geocode consulta o geocoder de texto livre e aceita só o primeiro resultado.
func (r *CEPResolver) geocode(ctx context.Context, street, city, state string) (string, string, bool) {
	query := strings.Join(nonEmpty(street, city, state), ", ")
	if query == "" {
		return "", "", false
	}

	resp, err := r.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      query,
			"format": "json",
			"limit":  "1",
		}).
		Get(r.cfg.GeocoderURL + "/search")
	if err != nil || !resp.IsSuccess() {
		return "", "", false
	}

	var hits []geocodeHit
	if err := json.Unmarshal(resp.Body(), &hits); err != nil || len(hits) == 0 {
		return "", "", false
	}
	return hits[0].Lat, hits[0].Lon, hits[0].Lat != "" && hits[0].Lon != ""
}

// attachCityID resolve o id numérico da cidade no cadastro do IXC por nome
// exato. Ausência não é erro; o campo só fica de fora.
func (r *CEPResolver) attachCityID(ctx context.Context, result *EnrichmentResult) {
	if result.City == "" || r.gateway == nil {
		return
	}
	rec, err := r.gateway.FindOne(ctx, "cidade", "nome", result.City)
	if err != nil {
		log.Printf("ℹ️  cidade %q sem id no IXC: %v", result.City, err)
		return
	}
	result.CityID = recString(rec, "id")
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
