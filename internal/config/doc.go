// Package config provides the typed client configuration for the
// request pipeline.
//
// Configuration is assembled from ordered layers. Each Layer holds
// optional overrides; nil fields inherit from the layer below. The
// precedence is client default < operation < request:
//
//	client, err := config.Resolve(config.Defaults(), fileLayer, envLayer)
//	if err != nil {
//	    return err // construction-time error, never a request-time one
//	}
//	effective, err := client.With(opLayer, requestLayer)
//
// YAML files support ${VAR} and ${VAR:-default} substitution. A Watcher
// reloads the client layer when the file changes.
package config
