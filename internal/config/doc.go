// Package config provides configuration parsing for docroot.
//
// The configuration is stored in docroot.json. Every field is optional;
// command-line flags override whatever the file sets.
//
// # Configuration File Structure
//
//	{
//	  "root": "www",
//	  "port": 8080,
//	  "bindAddress": "0.0.0.0",
//	  "workers": 4,
//	  "silent": false,
//	  "interpreter": {
//	    "binary": "php-cgi",
//	    "dir": "/usr/bin/"
//	  },
//	  "handler": {
//	    "indexFiles": ["index.htm", "index.html", "main.html"],
//	    "readTimeout": "30s"
//	  },
//	  "admin": {
//	    "address": "127.0.0.1:9090"
//	  },
//	  "log": {
//	    "format": "json",
//	    "level": "debug"
//	  },
//	  "mirror": {
//	    "bucket": "my-site",
//	    "prefix": "public/",
//	    "region": "us-east-1"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Root:", cfg.RootPath())
package config
