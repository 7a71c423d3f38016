// Package catalog loads user-defined artifacts from HCL files.
//
// Each file may declare any number of artifact blocks:
//
//	artifact "lib" {
//	  version    = "1.2.0"
//	  depends_on = ["cargo", "m1-source@main"]
//	  default    = platform.os == "windows" ? "unsupported" : "release"
//
//	  release {
//	    owner   = "acme"
//	    repo    = "lib"
//	    product = "lib"
//	  }
//
//	  script {
//	    body    = "make install PREFIX=$MOVEMENT_DIR VERSION=${version}"
//	    outputs = ["bin/lib"]
//	    env     = { CC = "clang" }
//	  }
//	}
//
// The default expression and the script body are evaluated per platform with
// the variables platform.os, platform.arch and version. Every block is
// checked against every supported platform when loaded, so the constructors
// it produces never fail later.
package catalog
