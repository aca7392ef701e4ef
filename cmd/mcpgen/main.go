//	@title			mcpgen
//	@version		1.0
//	@description	MCP server exposing image, speech and video generation tools.
//
//	@BasePath	/
//
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						x-api-key
//	@description				Shared secret configured by MCP_API_KEY.

package main

func main() {
	Execute()
}
