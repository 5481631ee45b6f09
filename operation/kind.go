// Package operation defines the failure taxonomy shared by every pdfmu
// operation and the error value that carries it to the command line.
package operation

import "strconv"

// Kind identifies a failure. Each kind has a stable numeric code that is also
// used as the process exit status, so tooling can branch on the code instead
// of parsing messages.
type Kind int

const (
	Unknown Kind = iota
	ArgumentsInvalid
	ConfigInvalid

	InputNotFound
	InputNotValidFormat

	OutputNotSpecified
	OutputExists
	OutputOpen
	OutputWrite
	OutputClose

	VersionWouldLower

	KeystoreTypeUnsupported
	KeystoreFileNotSpecified
	KeystoreFileOpenFailed
	KeystoreLoadFailed
	KeystoreFileClose

	AliasNotFound
	AliasAmbiguous
	AliasNoKey
	KeyExtractionFailed

	DigestAlgorithmUnsupported
	SigningFailed
)

type kindInfo struct {
	name     string
	code     int
	template string
}

// The codes are part of the external interface. Never renumber an entry.
var kinds = map[Kind]kindInfo{
	Unknown:          {"Unknown", 1, "An unexpected error occurred."},
	ArgumentsInvalid: {"ArgumentsInvalid", 2, "Invalid arguments: ${reason}"},
	ConfigInvalid:    {"ConfigInvalid", 3, "Could not load the configuration ${file}: ${reason}"},

	InputNotFound:       {"InputNotFound", 10, "Input file not found: ${inputFile}"},
	InputNotValidFormat: {"InputNotValidFormat", 11, "The input file is not a valid PDF document: ${inputFile}"},

	OutputNotSpecified: {"OutputNotSpecified", 20, "Output file not specified."},
	OutputExists:       {"OutputExists", 21, "Output file ${outputFile} already exists. Set --force to overwrite it."},
	OutputOpen:         {"OutputOpen", 22, "Could not open the output file ${outputFile}."},
	OutputWrite:        {"OutputWrite", 23, "Could not write to the output file ${outputFile}."},
	OutputClose:        {"OutputClose", 24, "Could not close the output file ${outputFile}."},

	VersionWouldLower: {"VersionWouldLower", 30, "Cannot lower the PDF version from ${inputVersion} to ${requestedVersion}. Set --allow-lower to override."},

	KeystoreTypeUnsupported:  {"KeystoreTypeUnsupported", 40, "Unsupported keystore type: ${type}"},
	KeystoreFileNotSpecified: {"KeystoreFileNotSpecified", 41, "Keystore file not specified (keystore type ${type})."},
	KeystoreFileOpenFailed:   {"KeystoreFileOpenFailed", 42, "Could not open the keystore file ${file}."},
	KeystoreLoadFailed:       {"KeystoreLoadFailed", 43, "Could not load the keystore (type ${type}). Incorrect password, wrong type or corrupted file?"},
	KeystoreFileClose:        {"KeystoreFileClose", 44, "Could not close the keystore file ${file}."},

	AliasNotFound:       {"AliasNotFound", 50, "The keystore does not contain the alias ${alias}."},
	AliasAmbiguous:      {"AliasAmbiguous", 51, "Found ${count} aliases with a private key; specify the alias."},
	AliasNoKey:          {"AliasNoKey", 52, "The alias ${alias} does not carry a private key."},
	KeyExtractionFailed: {"KeyExtractionFailed", 53, "Could not extract the key of the alias ${alias}."},

	DigestAlgorithmUnsupported: {"DigestAlgorithmUnsupported", 60, "The digest algorithm ${digestAlgorithm} is not supported."},
	SigningFailed:              {"SigningFailed", 61, "Could not sign the document: ${reason}"},
}

// Code returns the stable numeric code of the kind.
func (k Kind) Code() int {
	if info, ok := kinds[k]; ok {
		return info.code
	}
	return kinds[Unknown].code
}

// Template returns the message template with ${name} placeholders.
func (k Kind) Template() string {
	if info, ok := kinds[k]; ok {
		return info.template
	}
	return kinds[Unknown].template
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Kinds returns every defined kind in declaration order.
func Kinds() []Kind {
	list := make([]Kind, 0, len(kinds))
	for k := Unknown; k <= SigningFailed; k++ {
		list = append(list, k)
	}
	return list
}
