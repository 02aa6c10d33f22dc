// Package logger provee un wrapper fino sobre zap con configuración
// dev/prod, singleton global y helpers de campos tipados.
//
// Uso típico:
//
//	logger.Init(logger.Config{Env: "prod", Level: "info", ServiceName: "policygate"})
//	defer logger.Sync()
//	logger.L().Info("decision issued", logger.KID(kid), logger.Decision(ok))
package logger
