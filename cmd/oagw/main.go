// Package main is the entry point for the OAGW outbound API gateway.
//
//	@title			OAGW - Outbound API Gateway
//	@version		1.0
//	@description	Multi-tenant egress proxy with per-upstream auth injection, rate limiting, and header transforms.
//
//	@license.name	MIT
//
//	@BasePath		/
package main

func main() {
	Execute()
}
