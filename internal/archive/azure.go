package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/report-vault/internal/config"
)

// AzureSink uploads archives to an Azure Blob Storage container
type AzureSink struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureSink creates a sink using the auth method configured in cfg
func NewAzureSink(cfg config.AzureConfig) (*AzureSink, error) {
	var client *azblob.Client
	var cred azcore.TokenCredential
	var err error

	serviceURL := cfg.GetServiceURL()

	switch cfg.GetAuthMethod() {
	case "connection_string":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}

	case "sas_token":
		sasURL := serviceURL
		if !strings.HasPrefix(cfg.SASToken, "?") {
			sasURL += "?"
		}
		sasURL += cfg.SASToken
		client, err = azblob.NewClientWithNoCredential(sasURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with SAS token: %w", err)
		}

	case "managed_identity":
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create default azure credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with managed identity: %w", err)
		}

	case "service_principal":
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create service principal credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with service principal: %w", err)
		}

	default:
		return nil, fmt.Errorf("no Azure authentication method configured")
	}

	return &AzureSink{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Archive uploads data as a block blob named prefix/name
func (a *AzureSink) Archive(ctx context.Context, name string, data []byte) error {
	blobName := strings.TrimLeft(name, "/")
	if a.prefix != "" {
		blobName = a.prefix + "/" + blobName
	}

	if _, err := a.client.UploadBuffer(ctx, a.container, blobName, data, nil); err != nil {
		return fmt.Errorf("failed to upload archive %s: %w", blobName, err)
	}
	return nil
}
