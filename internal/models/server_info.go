package models

// ServerInfo is the body served by the companion /server-info endpoint.
type ServerInfo struct {
	ServerName          string `json:"serverName"`
	TotalMaxConnections int    `json:"totalMaxConnections"`
	CurrentOnline       int    `json:"currentOnline"`
}
