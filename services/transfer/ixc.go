package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// IXCGateway define as operações usadas contra o IXC. O IXC não tem API
// transacional: cada chamada é independente e pode falhar sozinha.
type IXCGateway interface {
	// FindOne consulta um registro único por filtro (qtype/query/oper).
	FindOne(ctx context.Context, entity, field, value string) (map[string]any, error)

	// Create cria um registro novo (POST /{entity}).
	Create(ctx context.Context, entity string, payload any) (map[string]any, error)

	// Update sobrescreve um registro existente (PUT /{entity}/{id}).
	Update(ctx context.Context, entity, id string, payload any) (map[string]any, error)

	// GenerateProtocol emite um protocolo de atendimento novo.
	GenerateProtocol(ctx context.Context) (string, error)
}

// IXCClient implementa IXCGateway sobre a API HTTP do IXC.
type IXCClient struct {
	http *resty.Client
}

// NewIXCClient cria o cliente com credencial e timeout fixados na construção.
func NewIXCClient(cfg Config) *IXCClient {
	client := resty.New().
		SetBaseURL(cfg.IXCHost).
		SetTimeout(cfg.IXCTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", cfg.IXCToken)

	return &IXCClient{http: client}
}

// listResponse é o envelope de consulta do IXC. O campo total chega ora como
// número, ora como string.
type listResponse struct {
	Total     any              `json:"total"`
	Registros []map[string]any `json:"registros"`
}

func totalCount(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// FindOne consulta um registro único por filtro (qtype/query/oper).
func (c *IXCClient) FindOne(ctx context.Context, entity, field, value string) (map[string]any, error) {
	body := map[string]string{
		"qtype": field,
		"query": value,
		"oper":  "=",
		"page":  "1",
		"rp":    "1",
	}

	// O header ixcsoft: listar distingue consulta de escrita no mesmo verbo POST
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("ixcsoft", "listar").
		SetBody(body).
		Post("/" + entity)
	if err != nil {
		return nil, fmt.Errorf("erro conexão IXC %s: %w", entity, err)
	}
	if !resp.IsSuccess() {
		return nil, &UpstreamError{Service: "ixc/" + entity, Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	var out listResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &UpstreamError{Service: "ixc/" + entity, Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	if totalCount(out.Total) == 0 || len(out.Registros) == 0 {
		return nil, &NotFoundError{Entity: entity}
	}
	return out.Registros[0], nil
}

// Create cria um registro novo. O IXC responde {"type":"success","id":...}
// com status 200 mesmo em alguns erros de negócio, então o corpo também é checado.
func (c *IXCClient) Create(ctx context.Context, entity string, payload any) (map[string]any, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/" + entity)
	if err != nil {
		return nil, fmt.Errorf("erro conexão IXC %s: %w", entity, err)
	}
	if !resp.IsSuccess() {
		return nil, &UpstreamError{Service: "ixc/" + entity, Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &UpstreamError{Service: "ixc/" + entity, Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	if t, ok := out["type"].(string); ok && t == "error" {
		return nil, &UpstreamError{Service: "ixc/" + entity, Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return out, nil
}

// Update sobrescreve um registro existente.
func (c *IXCClient) Update(ctx context.Context, entity, id string, payload any) (map[string]any, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Put(fmt.Sprintf("/%s/%s", entity, id))
	if err != nil {
		return nil, fmt.Errorf("erro conexão IXC %s: %w", entity, err)
	}
	if !resp.IsSuccess() {
		return nil, &UpstreamError{Service: "ixc/" + entity, Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		// alguns PUTs do IXC devolvem texto puro
		return map[string]any{"raw": string(resp.Body())}, nil
	}
	if t, ok := out["type"].(string); ok && t == "error" {
		return nil, &UpstreamError{Service: "ixc/" + entity, Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return out, nil
}

// GenerateProtocol emite um protocolo de atendimento via ixcsoft: inserir.
func (c *IXCClient) GenerateProtocol(ctx context.Context) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("ixcsoft", "inserir").
		Post("/gerar_protocolo_atendimento")
	if err != nil {
		return "", fmt.Errorf("erro conexão IXC gerar_protocolo_atendimento: %w", err)
	}
	if !resp.IsSuccess() {
		return "", &UpstreamError{Service: "ixc/gerar_protocolo_atendimento", Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	protocolo := strings.Trim(strings.TrimSpace(string(resp.Body())), `"`)
	if protocolo == "" {
		return "", &UpstreamError{Service: "ixc/gerar_protocolo_atendimento", Status: resp.StatusCode(), Body: "protocolo vazio"}
	}
	return protocolo, nil
}
