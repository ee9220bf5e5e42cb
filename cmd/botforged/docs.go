package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           botforged API
// @version         1.0
// @description     HTTP API for the conversational service: chat webhook, status and health.
//
// @contact.name   botforged maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
