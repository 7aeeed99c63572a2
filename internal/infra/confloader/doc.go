// Package confloader loads configuration and settings seed files.
//
// Configuration is read with koanf from, in increasing priority: the
// defaults struct, a YAML or JSON file, SETTREE_ environment variables
// and a map of command-line flags.
//
// Seed files use the same parsers but are flattened with a "/" delimiter
// so that nested documents become setting names (see Flatten). Watcher
// reports changes of watched files at a bounded rate.
package confloader
