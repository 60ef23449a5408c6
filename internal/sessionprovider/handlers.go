package sessionprovider

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ory/fosite"

	"github.com/alianzacap/jppr-front/internal/crypto"
	"github.com/alianzacap/jppr-front/internal/jsonwriter"
	"github.com/alianzacap/jppr-front/internal/log"
	"github.com/alianzacap/jppr-front/internal/storage"
)

// TokenHandler serves the OAuth 2.0 token endpoint. Fosite populates the
// session from the authorization code during NewAccessRequest.
func (p *Provider) TokenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session := &Session{DefaultSession: &fosite.DefaultSession{}}
	accessRequest, err := p.oauth2.NewAccessRequest(ctx, r, session)
	if err != nil {
		log.LogError("Access request error: %v", err)
		p.oauth2.WriteAccessError(w, accessRequest, err)
		return
	}

	response, err := p.oauth2.NewAccessResponse(ctx, accessRequest)
	if err != nil {
		log.LogError("Access response error: %v", err)
		p.oauth2.WriteAccessError(w, accessRequest, err)
		return
	}

	p.oauth2.WriteAccessResponse(w, accessRequest, response)
}

// MetadataHandler serves RFC 8414 authorization server metadata.
func (p *Provider) MetadataHandler(w http.ResponseWriter, r *http.Request) {
	jsonwriter.WriteResponse(w, http.StatusOK, p.Metadata())
}

// RegisterHandler serves RFC 7591 dynamic client registration. Clients
// asking for client_secret_post get a generated secret stored as a
// bcrypt hash; everyone else registers as a public client.
func (p *Provider) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var metadata map[string]any
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid request body")
		return
	}

	redirectURIs, scopes, err := parseClientMetadata(metadata)
	if err != nil {
		log.LogError("Client registration parsing error: %v", err)
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}

	clientID, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogError("Failed to generate client ID: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to create client")
		return
	}

	tokenEndpointAuthMethod := "none"
	var client *storage.Client
	var plaintextSecret string

	if authMethod, ok := metadata["token_endpoint_auth_method"].(string); ok && authMethod == "client_secret_post" {
		plaintextSecret, err = crypto.GenerateSecureToken()
		if err != nil {
			log.LogError("Failed to generate client secret: %v", err)
			jsonwriter.WriteInternalServerError(w, "Failed to create client")
			return
		}
		hashedSecret, err := crypto.HashClientSecret(plaintextSecret)
		if err != nil {
			log.LogError("Failed to hash client secret: %v", err)
			jsonwriter.WriteInternalServerError(w, "Failed to create client")
			return
		}
		client, err = p.store.RegisterConfidentialClient(r.Context(), clientID, hashedSecret, redirectURIs, scopes)
		if err != nil {
			log.LogError("Failed to create confidential client: %v", err)
			jsonwriter.WriteInternalServerError(w, "Failed to create client")
			return
		}
		tokenEndpointAuthMethod = "client_secret_post"
	} else {
		client, err = p.store.RegisterPublicClient(r.Context(), clientID, redirectURIs, scopes)
		if err != nil {
			log.LogError("Failed to create client: %v", err)
			jsonwriter.WriteInternalServerError(w, "Failed to create client")
			return
		}
	}

	response := map[string]any{
		"client_id":                  client.ID,
		"client_id_issued_at":        client.CreatedAt,
		"redirect_uris":              client.RedirectURIs,
		"grant_types":                client.GrantTypes,
		"response_types":             client.ResponseTypes,
		"scope":                      strings.Join(client.Scopes, " "),
		"token_endpoint_auth_method": tokenEndpointAuthMethod,
	}
	if plaintextSecret != "" {
		response["client_secret"] = plaintextSecret
	}

	jsonwriter.WriteResponse(w, http.StatusCreated, response)
}

// parseClientMetadata extracts redirect URIs and scopes from RFC 7591
// client metadata. Redirect URIs are required; scopes default to the
// tool scopes when the client asks for none.
func parseClientMetadata(metadata map[string]any) ([]string, []string, error) {
	redirectURIs := []string{}
	if uris, ok := metadata["redirect_uris"].([]any); ok {
		for _, uri := range uris {
			if uriStr, ok := uri.(string); ok {
				redirectURIs = append(redirectURIs, uriStr)
			}
		}
	}
	if len(redirectURIs) == 0 {
		return nil, nil, fosite.ErrInvalidRequest.WithHint("no valid redirect URIs provided")
	}

	scopes := []string{"read", "write"}
	if clientScopes, ok := metadata["scope"].(string); ok {
		if strings.TrimSpace(clientScopes) != "" {
			scopes = strings.Fields(clientScopes)
		}
	}

	return redirectURIs, scopes, nil
}
