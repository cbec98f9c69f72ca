// Package tls serves the ops server certificate and keeps it current.
//
// CertificateReloader loads a PEM certificate and key pair and watches both
// files with fsnotify. When either changes, the pair is loaded again and new
// handshakes use it; a pair that fails to load is logged and the previous
// certificate stays in use. Watching the parent directories means the atomic
// symlink swap used by mounted Kubernetes secrets is seen too.
//
//	reloader, err := tls.NewCertificateReloader(certFile, keyFile, logger)
//	if err != nil {
//	    return err
//	}
//	go reloader.Watch(ctx)
//	srv := server.NewServer(&cfg.Server, server.Dependencies{TLS: reloader.TLSConfig()})
package tls
