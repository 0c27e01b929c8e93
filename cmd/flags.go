package cmd

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlag makes a flag the highest priority source for key. Only flags the
// user actually set override the file and environment.
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) {
	if f == nil {
		panic("flag for " + key + " is not defined")
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}
