// Package rotate implements a log file destination that starts a new file for
// every calendar day, compresses finished days into zip archives and removes
// days that fall outside the retention window.
package rotate
