/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/rotblauer/velofuse/params"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   params.AppName,
	Short: "Fuse GPS fixes and inertial samples into cycling speed, heading and motion",
	Long: `velofuse turns noisy GPS fixes and phone/bike inertial samples into a
steady stream of fused estimates: filtered and smoothed speed, acceleration,
heading, whether the rider is moving or pedaling, and how far to trust it.

Recorded sessions are ndjson, one sample per line:

  {"type":"geo","lat":46.87,"lon":-113.99,"speed":5.2,"accuracy":4,"time":1731952467293}
  {"type":"motion","accel":{"x":0.1,"y":3.2,"z":1.8},"rotation":{"x":0,"y":0,"z":0},"time":1731952467300}
  {"type":"error","error":"permission_denied","time":1731952467400}

Every flag can also be set in $HOME/.velofuse.yaml or as VELOFUSE_<FLAG>,
eg. VELOFUSE_POSITION_FILTER=true.
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pFlags := rootCmd.PersistentFlags()
	pFlags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.velofuse.yaml)")
	pFlags.Int("verbosity", int(slog.LevelInfo), "Log level: -4 debug, 0 info, 4 warn, 8 error")
	cobra.CheckErr(viper.BindPFlags(pFlags))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName("." + params.AppName)
	}

	viper.SetEnvPrefix(params.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaultSlog binds the command's flags into viper and installs the default logger.
// Commands call it first thing, before any component takes a logger.
func setDefaultSlog(cmd *cobra.Command, args []string) {
	cobra.CheckErr(viper.BindPFlags(cmd.Flags()))
	level := slog.Level(viper.GetInt("verbosity"))
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Command", "name", cmd.Name(), "args", args, "level", level)
}

// addFusionFlags registers the tunables a command passes to the fusion session.
func addFusionFlags(flags *pflag.FlagSet) {
	d := params.DefaultFusionConfig()
	flags.Bool("position-filter", d.PositionFilter, "Also run the lat/lng Kalman filter and report a filtered position")
	flags.Float64("movement-threshold", d.MovementThreshold, "Reported speed, m/s, above which the rider is moving")
	flags.Float64("jump-distance", d.JumpDistance, "Displacement, meters, beyond which a fix is always a jump")
	flags.Duration("smoothing-window", d.SmoothingWindow, "Trailing window for the smoothed speed")
	flags.Int("calibration-samples", d.CalibrationSamples, "Idle inertial samples used to learn the noise floor")
	flags.Float64("calibration-blend", d.CalibrationAccelerationBlend, "Inertial weight in the acceleration while calibrating")
}

// fusionConfig reads the tunables registered by addFusionFlags.
func fusionConfig() *params.FusionConfig {
	c := params.DefaultFusionConfig()
	c.PositionFilter = viper.GetBool("position-filter")
	c.MovementThreshold = viper.GetFloat64("movement-threshold")
	c.JumpDistance = viper.GetFloat64("jump-distance")
	c.SmoothingWindow = viper.GetDuration("smoothing-window")
	c.CalibrationSamples = viper.GetInt("calibration-samples")
	c.CalibrationAccelerationBlend = viper.GetFloat64("calibration-blend")
	return c
}
