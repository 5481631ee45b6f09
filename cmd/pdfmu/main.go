// Command pdfmu updates the version and the properties of PDF documents and
// signs them.
//
// Usage:
//
//	pdfmu [options] <command> [command options] <input.pdf>
//
// Commands:
//
//	update-version     Update the PDF version of a document
//	update-properties  Update the document information properties
//	sign               Sign a document with a key from a keystore
//	inspect            Show the version, properties and signatures of a document
//
// Examples:
//
//	# Raise the version to 1.7, writing a new file
//	pdfmu update-version -v 1.7 -o out.pdf in.pdf
//
//	# Set the title in place
//	pdfmu update-properties -f --title "Annual report" in.pdf
//
//	# Sign with a PKCS#12 keystore and JSON output
//	pdfmu --output-format json sign --keystore signer.p12 --storepass-envvar KS_PASS -o signed.pdf in.pdf
package main

import (
	"os"

	"github.com/digitorus/pdfmu/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pdfmu
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
